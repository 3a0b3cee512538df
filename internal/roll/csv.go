// Package roll handles electoral-roll bulk formats: CSV import of electors,
// CSV export of the roll, and secret-code generation and export.
package roll

import (
	"crypto/rand"
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/JavaBool/votely/internal/database/models"
)

// Entry is one elector parsed from an uploaded CSV.
type Entry struct {
	Name  string
	Phone string
	Email string
}

// ParseResult reports what a CSV parse produced. Rows with neither a phone
// number nor an email are unreachable and counted in SkippedNoContact.
type ParseResult struct {
	Entries          []Entry
	SkippedNoContact int
}

// column positions used when the file has no recognizable header row
const (
	posName  = 0
	posPhone = 1
	posEmail = 2
)

// ParseCSV reads an elector roll upload. A header row is detected by
// substring-matching the first row's cells: any cell containing "name",
// "phone"/"mobile", or "email" maps that column. Headerless files are read
// positionally as name, phone, email.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return &ParseResult{}, nil
	}

	nameCol, phoneCol, emailCol := posName, posPhone, posEmail
	start := 0
	if cols, ok := detectHeader(records[0]); ok {
		nameCol, phoneCol, emailCol = cols[0], cols[1], cols[2]
		start = 1
	}

	result := &ParseResult{}
	for _, record := range records[start:] {
		entry := Entry{
			Name:  cell(record, nameCol),
			Phone: cell(record, phoneCol),
			Email: strings.ToLower(cell(record, emailCol)),
		}
		if entry.Name == "" && entry.Phone == "" && entry.Email == "" {
			continue
		}
		if entry.Phone == "" && entry.Email == "" {
			result.SkippedNoContact++
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// detectHeader returns the (name, phone, email) column indexes if the row
// looks like a header.
func detectHeader(row []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	found := false
	for i, cell := range row {
		c := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case strings.Contains(c, "name") && cols[0] == -1:
			cols[0], found = i, true
		case (strings.Contains(c, "phone") || strings.Contains(c, "mobile")) && cols[1] == -1:
			cols[1], found = i, true
		case strings.Contains(c, "email") && cols[2] == -1:
			cols[2], found = i, true
		}
	}
	if !found {
		return cols, false
	}
	// Unmatched columns fall back to their positional defaults
	if cols[0] == -1 {
		cols[0] = posName
	}
	if cols[1] == -1 {
		cols[1] = posPhone
	}
	if cols[2] == -1 {
		cols[2] = posEmail
	}
	return cols, true
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// WriteElectors exports the roll as CSV.
func WriteElectors(w io.Writer, electors []*models.Elector) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"name", "phone", "email", "status", "has_voted"}); err != nil {
		return err
	}
	for _, e := range electors {
		row := []string{
			e.Name,
			e.Phone.String,
			e.Email.String,
			string(e.Status),
			strconv.FormatBool(e.HasVoted),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSecretCodes exports each elector's secret code alongside their contact
// details, for offline distribution.
func WriteSecretCodes(w io.Writer, electors []*models.Elector) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"name", "phone", "email", "secret_code"}); err != nil {
		return err
	}
	for _, e := range electors {
		row := []string{e.Name, e.Phone.String, e.Email.String, e.SecretCode}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

const (
	secretCodeLength = 6
	secretCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateSecretCode returns a random 6-character voting PIN drawn from an
// unambiguous uppercase alphabet.
func GenerateSecretCode() string {
	buf := make([]byte, secretCodeLength)
	max := big.NewInt(int64(len(secretCodeChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			panic(fmt.Sprintf("secret code generation: %v", err))
		}
		buf[i] = secretCodeChars[n.Int64()]
	}
	return string(buf)
}
