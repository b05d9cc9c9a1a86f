package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountry is assigned to every parsed address.
const DefaultCountry = "US"

// Address is a postal address split into components.
type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

var (
	zipPattern   = regexp.MustCompile(`(\d{5})(?:-\d{4})?`)
	commaPattern = regexp.MustCompile(`,\s*`)
)

// ParseAddress splits a single-line address like "1 Anystreet, Ri 02816-7613 US".
//
// The first comma-separated part is the street. With three or more parts the
// second is the city. The first token of the last part is the state, and the
// first five-digit group anywhere in the text is the ZIP.
func ParseAddress(text string) (Address, error) {
	s := strings.Trim(text, " ,")

	fail := func(err error) (Address, error) {
		return Address{}, fmt.Errorf("failed to parse address %q: %w", s, err)
	}

	zip := zipPattern.FindStringSubmatch(s)
	if zip == nil {
		return fail(errors.New("no ZIP code found"))
	}

	raw := commaPattern.Split(s, -1)
	parts := make([]string, len(raw))
	for i, p := range raw {
		parts[i] = strings.TrimSpace(p)
	}
	if len(parts) < 2 {
		return fail(errors.New("expected street and state/ZIP separated by a comma"))
	}

	stateZip := strings.Fields(parts[len(parts)-1])
	if len(stateZip) < 2 {
		return fail(fmt.Errorf("invalid state/ZIP format: %q", parts[len(parts)-1]))
	}

	addr := Address{
		Street:  parts[0],
		State:   stateZip[0],
		ZipCode: zip[1],
		Country: DefaultCountry,
	}
	if len(parts) > 2 {
		addr.City = parts[1]
	}
	return addr, nil
}
