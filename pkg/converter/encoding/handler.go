// --- START OF FINAL REVISED FILE pkg/converter/encoding/handler.go ---
package encoding

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset" // Required for encoding.Encoding interface
	"golang.org/x/text/transform"
)

const (
	// sniffLen is the number of bytes used by http.DetectContentType
	sniffLen = 512
	// checkLen is a buffer size used for null byte checks.
	checkLen = 1024
	// Null byte threshold percentage to consider a file binary.
	nullThreshold = 0.15 // 15%
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Text MIME types bulk drops arrive as, besides text/*.
var knownTextMIMETypes = map[string]bool{
	"application/json":         true,
	"application/xml":          true,
	"application/csv":          true,
	"application/octet-stream": true, // inconclusive; the null byte check decides
}

// Handler detects binary content and converts source bytes to UTF-8.
type Handler interface {
	// Decode converts content to UTF-8 and strips any byte order mark. It returns the
	// IANA name of the source encoding and whether that encoding was certain
	// (BOM, valid UTF-8, or configured default) rather than guessed.
	Decode(content []byte) (utf8Content []byte, encodingName string, certain bool, err error)

	// IsBinary checks if the content is likely binary data based on MIME type sniffing
	// (first 512 bytes) and null byte percentage (first 1024 bytes).
	IsBinary(content []byte) bool
}

// charsetHandler implements Handler using golang.org/x/net/html/charset.
type charsetHandler struct {
	defaultEncoding string
}

// NewHandler creates a handler. defaultEncoding (e.g. "latin1") is applied to
// content that is neither BOM-marked nor valid UTF-8; empty means guess.
func NewHandler(defaultEncoding string) Handler { // minimal comment
	return &charsetHandler{defaultEncoding: defaultEncoding}
}

// ValidateEncodingName reports whether name is a known encoding label.
func ValidateEncodingName(name string) error {
	if name == "" {
		return nil
	}
	if enc, _ := charset.Lookup(name); enc == nil {
		return fmt.Errorf("unknown encoding %q", name)
	}
	return nil
}

// Decode implements the Handler interface.
func (h *charsetHandler) Decode(content []byte) ([]byte, string, bool, error) { // minimal comment
	if len(content) == 0 {
		return content, "utf-8", true, nil
	}

	hasUTF16BOM := bytes.HasPrefix(content, bomUTF16LE) || bytes.HasPrefix(content, bomUTF16BE)
	if !hasUTF16BOM && utf8.Valid(content) {
		return bytes.TrimPrefix(content, bomUTF8), "utf-8", true, nil
	}

	enc, name, certain := charset.DetermineEncoding(content, "")
	if !certain && h.defaultEncoding != "" {
		if lookup, lookupName := charset.Lookup(h.defaultEncoding); lookup != nil {
			enc, name, certain = lookup, lookupName, true
		}
	}
	if enc == nil {
		return nil, "unknown", false, fmt.Errorf("no decoder for content")
	}
	if name == "" {
		name = "unknown"
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), content)
	if err != nil {
		return nil, name, certain, fmt.Errorf("failed to convert from '%s': %w", name, err)
	}
	out = bytes.TrimPrefix(out, bomUTF8)
	return out, name, certain, nil
}

func isMIMETextBased(contentType string) bool { // minimal comment
	mimeType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	return knownTextMIMETypes[mimeType] || strings.HasSuffix(mimeType, "+json") || strings.HasSuffix(mimeType, "+xml")
}

// IsBinary implements the Handler interface.
func (h *charsetHandler) IsBinary(content []byte) bool { // minimal comment
	if len(content) == 0 {
		return false
	}
	// UTF-16 text is half null bytes.
	if bytes.HasPrefix(content, bomUTF16LE) || bytes.HasPrefix(content, bomUTF16BE) {
		return false
	}

	sniff := content[:min(len(content), sniffLen)]
	if !isMIMETextBased(http.DetectContentType(sniff)) {
		return true
	}

	window := content[:min(len(content), checkLen)]
	nullCount := bytes.Count(window, []byte{0x00})
	return float64(nullCount)/float64(len(window)) > nullThreshold
}

// --- END OF FINAL REVISED FILE pkg/converter/encoding/handler.go ---
