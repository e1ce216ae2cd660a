// Package csvenc holds the CSV boundary of the service: parsing uploaded
// identifier lists and rendering the cumulative result table.
package csvenc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

var resultHeader = []string{
	"uid",
	"full_name",
	"status",
	"linkedin_url",
	"contact_type",
	"contact_value",
	"contact_subtype",
}

// EncodeResultRows renders the result table as a CSV artifact with a header
// row, preserving row order.
func EncodeResultRows(rows []domain.ResultRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(resultHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.UID,
			row.FullName,
			row.Status,
			row.LinkedInURL,
			optional(row.ContactType),
			optional(row.ContactValue),
			optional(row.ContactSubType),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseIdentifiers reads a single-column CSV of profile URLs, skipping
// blank lines and anything that is not an http(s) link (header rows
// included).
func ParseIdentifiers(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var identifiers []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable csv: %v", domain.ErrValidation, err)
		}
		if len(record) == 0 {
			continue
		}

		value := strings.TrimSpace(stripBOM(record[0]))
		if value == "" || !strings.HasPrefix(strings.ToLower(value), "http") {
			continue
		}
		identifiers = append(identifiers, value)
	}

	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%w: no identifiers found in csv", domain.ErrValidation)
	}
	return identifiers, nil
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
