package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeCompanies(t *testing.T) {
	got := DedupeCompanies([]Company{
		{Name: "Example", Domain: " Example.COM "},
		{Name: "Dup", Domain: "example.com"},
		{Domain: "other.org"},
		{Name: "blank", Domain: "  "},
	})
	assert.Equal(t, []Company{
		{Name: "Example", Domain: "example.com"},
		{Name: "other.org", Domain: "other.org"},
	}, got)
}

func TestDedupePeople(t *testing.T) {
	got := DedupePeople([]Person{
		{Name: "A", Email: "a@x.com"},
		{Name: "No email"},
		{Name: "A2", Email: "a@x.com"},
		{Name: "B", Email: "b@x.com"},
	})
	assert.Equal(t, []Person{{Name: "A", Email: "a@x.com"}, {Name: "B", Email: "b@x.com"}}, got)
}

func TestDedupeProducts(t *testing.T) {
	got := DedupeProducts([]Product{{SKU: "X"}, {SKU: ""}, {SKU: "X", Name: "later"}, {SKU: "Y"}})
	assert.Equal(t, []Product{{SKU: "X"}, {SKU: "Y"}}, got)
}
