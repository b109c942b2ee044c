package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TSVParser reads tab-separated values. The first row names the fields.
type TSVParser struct{}

// Name implements Parser.
func (TSVParser) Name() string { return "tsv" }

// Parse implements Parser.
func (TSVParser) Parse(ctx context.Context, r io.Reader, emit EmitFunc) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: header: %w", ErrMalformedRecord, err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	cr.FieldsPerRecord = len(names)

	for row := 1; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		values, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrMalformedRecord, row, err)
		}
		fields := make([]Field, len(values))
		for i, v := range values {
			fields[i] = Field{Name: names[i], Value: v}
		}
		rec, err := FromFields(fields)
		if err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}
