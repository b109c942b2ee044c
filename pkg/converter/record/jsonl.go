package record

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// maxLineBytes bounds a single source line.
const maxLineBytes = 32 * 1024 * 1024

// JSONLParser reads one JSON object per line. Blank lines are skipped.
type JSONLParser struct{}

// Name implements Parser.
func (JSONLParser) Name() string { return "jsonl" }

// Parse implements Parser.
func (JSONLParser) Parse(ctx context.Context, r io.Reader, emit EmitFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeJSONRecord(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, lineNo+1, err)
	}
	return nil
}

func decodeJSONRecord(line []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("%w: trailing data after object", ErrMalformedRecord)
	}
	if fields == nil {
		return Record{}, fmt.Errorf("%w: null record", ErrMalformedRecord)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]Field, 0, len(fields))
	for _, name := range names {
		value, err := flatten(name, fields[name])
		if err != nil {
			return Record{}, err
		}
		list = append(list, Field{Name: name, Value: value})
	}
	return FromFields(list)
}

// flatten renders a JSON value as a field string. Author lists join with ";".
func flatten(name string, raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case []any:
		parts := make([]string, 0, len(v))
		allScalar := true
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				allScalar = false
				break
			}
			parts = append(parts, s)
		}
		if allScalar {
			return strings.Join(parts, "; "), nil
		}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("%w: field %q: %w", ErrMalformedRecord, name, err)
	}
	return string(data), nil
}
