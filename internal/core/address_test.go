package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Address
	}{
		{
			name:  "zip plus four, no city",
			input: "1 Anystreet, Ri 02816-7613 US",
			want:  Address{Street: "1 Anystreet", State: "Ri", ZipCode: "02816", Country: "US"},
		},
		{
			name:  "plain zip",
			input: "4 Anystreet, NY 10001 US",
			want:  Address{Street: "4 Anystreet", State: "NY", ZipCode: "10001", Country: "US"},
		},
		{
			name:  "with city",
			input: "3 Elm St, Boston, MA 02108 US",
			want:  Address{Street: "3 Elm St", City: "Boston", State: "MA", ZipCode: "02108", Country: "US"},
		},
		{
			name:  "stray commas and spaces trimmed",
			input: " ,2 Main St, Springfield, IL 62701, ",
			want:  Address{Street: "2 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddress_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no zip", "1 Anystreet, RI US"},
		{"single part", "1 Anystreet RI 02816"},
		{"state missing", "1 Anystreet, 02816"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to parse address")
		})
	}
}
