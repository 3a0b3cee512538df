package roll

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaBool/votely/internal/database/models"
)

func TestParseCSVWithHeader(t *testing.T) {
	input := "Full Name,Mobile Number,Email Address\n" +
		"Ada Lovelace,+15551230001,ada@example.com\n" +
		"Alan Turing,+15551230002,alan@example.com\n"

	result, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, Entry{Name: "Ada Lovelace", Phone: "+15551230001", Email: "ada@example.com"}, result.Entries[0])
	assert.Equal(t, 0, result.SkippedNoContact)
}

func TestParseCSVReorderedHeader(t *testing.T) {
	input := "email,name,phone\n" +
		"ada@example.com,Ada Lovelace,+15551230001\n"

	result, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Ada Lovelace", result.Entries[0].Name)
	assert.Equal(t, "+15551230001", result.Entries[0].Phone)
	assert.Equal(t, "ada@example.com", result.Entries[0].Email)
}

func TestParseCSVWithoutHeader(t *testing.T) {
	input := "Ada Lovelace,+15551230001,ada@example.com\n"

	result, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Ada Lovelace", result.Entries[0].Name)
}

func TestParseCSVSkipsRowsWithoutContact(t *testing.T) {
	input := "name,phone,email\n" +
		"No Contact,,\n" +
		"Has Email,,someone@example.com\n" +
		",,\n"

	result, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Has Email", result.Entries[0].Name)
	// Fully blank rows are ignored silently, contactless rows are counted
	assert.Equal(t, 1, result.SkippedNoContact)
}

func TestParseCSVLowercasesEmail(t *testing.T) {
	input := "name,phone,email\nAda,+1555,ADA@Example.COM\n"

	result, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "ada@example.com", result.Entries[0].Email)
}

func TestParseCSVEmpty(t *testing.T) {
	result, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
}

func TestWriteElectors(t *testing.T) {
	electors := []*models.Elector{
		{
			Name:     "Ada Lovelace",
			Phone:    sql.NullString{String: "+15551230001", Valid: true},
			Email:    sql.NullString{String: "ada@example.com", Valid: true},
			Status:   models.ElectorApproved,
			HasVoted: true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteElectors(&buf, electors))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "name,phone,email,status,has_voted", lines[0])
	assert.Equal(t, "Ada Lovelace,+15551230001,ada@example.com,approved,true", lines[1])
}

func TestWriteSecretCodes(t *testing.T) {
	electors := []*models.Elector{
		{
			Name:       "Ada Lovelace",
			Email:      sql.NullString{String: "ada@example.com", Valid: true},
			SecretCode: "ABCD2345",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSecretCodes(&buf, electors))

	assert.Contains(t, buf.String(), "ABCD2345")
	assert.Contains(t, buf.String(), "secret_code")
}

func TestGenerateSecretCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateSecretCode()
		assert.Len(t, code, 6)
		assert.False(t, seen[code], "codes should not repeat")
		seen[code] = true
		for _, c := range code {
			assert.Contains(t, secretCodeChars, string(c))
		}
	}
}
