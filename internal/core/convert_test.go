package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// ParseDecimal Tests
// ----------------------------------------------------------------------------

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantValue string
	}{
		{name: "positive integer", input: "123", wantValue: "123"},
		{name: "zero", input: "0", wantValue: "0"},
		{name: "empty is zero", input: "", wantValue: "0"},
		{name: "whitespace is zero", input: "   ", wantValue: "0"},
		{name: "negative integer", input: "-456", wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValue: "0.99"},
		{name: "dollar sign", input: "$1,234.56", wantValue: "1234.56"},
		{name: "euro sign", input: "\u20ac1234.56", wantValue: "1234.56"},
		{name: "pound sign", input: "\u00a31234.56", wantValue: "1234.56"},
		{name: "accounting negative", input: "(1,234.56)", wantValue: "-1234.56"},
		{name: "scientific notation", input: "1.5e3", wantValue: "1500"},
		{name: "text", input: "abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
		{name: "currency only", input: "$", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal(%q) = %s, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) error = %v", tt.input, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.wantValue)) {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got, tt.wantValue)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"", 0, false},
		{"2.0", 2, false},
		{"2.9", 2, false},
		{"-1", 0, true},
		{"x", 0, true},
		{"99999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseQuantity(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQuantity(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestToPgNumeric(t *testing.T) {
	tests := []string{"0", "42", "42.00", "-0.5", "126.995", "1000000.01"}
	for _, in := range tests {
		d := decimal.RequireFromString(in)
		n := ToPgNumeric(d)
		if !n.Valid {
			t.Fatalf("ToPgNumeric(%s) invalid", in)
		}
		back := decimal.NewFromBigInt(n.Int, n.Exp)
		if !back.Equal(d) {
			t.Errorf("ToPgNumeric(%s) round trip = %s", in, back)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"11/25/2016", time.Date(2016, 11, 25, 0, 0, 0, 0, time.UTC), true},
		{"1/2/2016", time.Date(2016, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"2016-11-25", time.Date(2016, 11, 25, 0, 0, 0, 0, time.UTC), true},
		{"2016-11-25 13:45:00", time.Date(2016, 11, 25, 13, 45, 0, 0, time.UTC), true},
		{"Nov 25, 2016", time.Date(2016, 11, 25, 0, 0, 0, 0, time.UTC), true},
		{"11/25/16", time.Date(2016, 11, 25, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"not a date", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestToPgDate(t *testing.T) {
	if ToPgDate(time.Time{}).Valid {
		t.Error("zero time should be NULL")
	}
	d := ToPgDate(time.Date(2016, 11, 25, 0, 0, 0, 0, time.UTC))
	if !d.Valid || d.Time.Day() != 25 {
		t.Errorf("ToPgDate() = %+v", d)
	}
}

func TestToPgText(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      string
	}{
		{"hello", true, "hello"},
		{"  padded  ", true, "padded"},
		{"", false, ""},
		{"   ", false, ""},
	}
	for _, tt := range tests {
		got := ToPgText(tt.input)
		if got.Valid != tt.wantValid || got.String != tt.want {
			t.Errorf("ToPgText(%q) = %+v, want valid=%v %q", tt.input, got, tt.wantValid, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Basic cleaning
		{
			name:  "simple string unchanged",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},

		// Whitespace trimming
		{
			name:  "leading whitespace",
			input: "  hello",
			want:  "hello",
		},
		{
			name:  "trailing whitespace",
			input: "hello  ",
			want:  "hello",
		},
		{
			name:  "surrounded by whitespace",
			input: "  hello  ",
			want:  "hello",
		},

		// Excel formula prefix handling
		{
			name:  "Excel formula with quotes",
			input: `="hello"`,
			want:  "hello",
		},
		{
			name:  "Excel formula number as text",
			input: `="12345"`,
			want:  "12345",
		},
		{
			name:  "bare equals sign",
			input: "=SUM(A1)",
			want:  "SUM(A1)",
		},
		{
			name:  "equals at start only",
			input: "=hello",
			want:  "hello",
		},

		// Quote handling
		{
			name:  "double quotes removed",
			input: `"hello"`,
			want:  "hello",
		},
		{
			name:  "single quotes removed",
			input: "'hello'",
			want:  "hello",
		},
		{
			name:  "mixed quotes removed outer only",
			input: `"hello'`,
			want:  "hello",
		},
		{
			name:  "leading single quote (Excel text prefix)",
			input: "'12345",
			want:  "12345",
		},

		// Combined cleaning
		{
			name:  "whitespace and quotes",
			input: `  "hello"  `,
			want:  "hello",
		},
		{
			name:  "excel formula with whitespace",
			input: `  ="test"  `,
			want:  "test",
		},

		// Edge cases
		{
			name:  "only quotes",
			input: `""`,
			want:  "",
		},
		{
			name:  "only single quotes",
			input: "''",
			want:  "",
		},
		{
			name:  "equals with quoted number",
			input: `="0"`,
			want:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestMakeHeaderIndex(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		checks map[string]int // key -> expected index
	}{
		{
			name:   "simple headers",
			header: []string{"Name", "Email", "Phone"},
			checks: map[string]int{
				"name":  0,
				"email": 1,
				"phone": 2,
			},
		},
		{
			name:   "case insensitive lookup",
			header: []string{"NAME", "Email", "pHoNe"},
			checks: map[string]int{
				"name":  0,
				"email": 1,
				"phone": 2,
			},
		},
		{
			name:   "headers with quotes cleaned",
			header: []string{`"Name"`, `"Email"`, `"Phone"`},
			checks: map[string]int{
				"name":  0,
				"email": 1,
				"phone": 2,
			},
		},
		{
			name:   "headers with whitespace",
			header: []string{"  Name  ", " Email ", "Phone"},
			checks: map[string]int{
				"name":  0,
				"email": 1,
				"phone": 2,
			},
		},
		{
			name:   "headers with Excel formula",
			header: []string{`="Name"`, `="Email"`},
			checks: map[string]int{
				"name":  0,
				"email": 1,
			},
		},
		{
			name:   "empty header",
			header: []string{},
			checks: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := MakeHeaderIndex(tt.header)

			for key, wantPos := range tt.checks {
				gotPos, ok := idx[key]
				if !ok {
					t.Errorf("MakeHeaderIndex(%v)[%q] not found, want index %d",
						tt.header, key, wantPos)
					continue
				}
				if gotPos != wantPos {
					t.Errorf("MakeHeaderIndex(%v)[%q] = %d, want %d",
						tt.header, key, gotPos, wantPos)
				}
			}
		})
	}
}

// TestMakeHeaderIndex_DuplicateHeaders verifies behavior with duplicate column names
func TestMakeHeaderIndex_DuplicateHeaders(t *testing.T) {
	// When duplicates exist, the first occurrence wins
	header := []string{"", "Name", "Email", "Name", ""}
	idx := MakeHeaderIndex(header)

	if gotPos, ok := idx["name"]; !ok || gotPos != 1 {
		t.Errorf("MakeHeaderIndex with duplicates: name index = %d, want 1", gotPos)
	}
	if gotPos := idx[""]; gotPos != 0 {
		t.Errorf("MakeHeaderIndex with duplicates: blank index = %d, want 0", gotPos)
	}
}
