package ingest

import "fmt"

// EntityKind names a canonical entity table.
type EntityKind string

const (
	EntityCompany  EntityKind = "company"
	EntityPerson   EntityKind = "person"
	EntityProduct  EntityKind = "product"
	EntityOrder    EntityKind = "order"
	EntityLineItem EntityKind = "line_item"
)

// IDAllocator issues placeholder ids during a dry run. Each entity kind has
// its own counter starting at 1. An allocator belongs to one run.
type IDAllocator struct {
	next map[EntityKind]int64
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[EntityKind]int64)}
}

// Next returns the next id for kind.
func (a *IDAllocator) Next(kind EntityKind) int64 {
	a.next[kind]++
	return a.next[kind]
}

// Issued returns how many ids were handed out for kind.
func (a *IDAllocator) Issued(kind EntityKind) int64 {
	return a.next[kind]
}

// SyntheticEmails fabricates placeholder addresses for customers whose
// channel withholds contact data. The counter is scoped to one run, so
// addresses are unique within the run only.
type SyntheticEmails struct {
	domain string
	n      int
}

func NewSyntheticEmails(domain string) *SyntheticEmails {
	if domain == "" {
		domain = DefaultSyntheticDomain
	}
	return &SyntheticEmails{domain: domain}
}

// DefaultSyntheticDomain is the domain of fabricated customer emails.
const DefaultSyntheticDomain = "FBA-amazon.com"

// Next returns FBA-user{N}@{domain} with N counting from 1.
func (s *SyntheticEmails) Next() string {
	s.n++
	return fmt.Sprintf("FBA-user%d@%s", s.n, s.domain)
}

// Count returns how many addresses were fabricated.
func (s *SyntheticEmails) Count() int {
	return s.n
}
