package ingest

import (
	"context"
	"errors"

	"github.com/JonMunkholm/salesync/internal/store"
)

// MatchBasis names the rule that matched a person.
type MatchBasis string

const (
	BasisEmail MatchBasis = "email"
	BasisPhone MatchBasis = "phone"
	BasisName  MatchBasis = "name"
)

// PersonQuery holds the identity fields of one customer.
type PersonQuery struct {
	Email string
	Phone string
	Name  string
}

// PersonMatcher is one exact-match strategy. Matchers whose key is empty
// are skipped.
type PersonMatcher struct {
	Basis MatchBasis
	Key   func(PersonQuery) string
	Find  func(ctx context.Context, r store.Reader, key string) (int64, error)
}

// DefaultPersonMatchers are tried in order of decreasing reliability. Exact
// name matching is a last resort and can merge distinct customers who share
// a name.
var DefaultPersonMatchers = []PersonMatcher{
	{
		Basis: BasisEmail,
		Key:   func(q PersonQuery) string { return q.Email },
		Find: func(ctx context.Context, r store.Reader, key string) (int64, error) {
			return r.FindPersonByEmail(ctx, key)
		},
	},
	{
		Basis: BasisPhone,
		Key:   func(q PersonQuery) string { return q.Phone },
		Find: func(ctx context.Context, r store.Reader, key string) (int64, error) {
			return r.FindPersonByPhone(ctx, key)
		},
	},
	{
		Basis: BasisName,
		Key:   func(q PersonQuery) string { return q.Name },
		Find: func(ctx context.Context, r store.Reader, key string) (int64, error) {
			return r.FindPersonByName(ctx, key)
		},
	},
}

// MatchPerson returns the first hit of matchers with its basis, or
// store.ErrNotFound.
func MatchPerson(ctx context.Context, r store.Reader, matchers []PersonMatcher, q PersonQuery) (int64, MatchBasis, error) {
	for _, m := range matchers {
		key := m.Key(q)
		if key == "" {
			continue
		}
		id, err := m.Find(ctx, r, key)
		if err == nil {
			return id, m.Basis, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, "", err
		}
	}
	return 0, "", store.ErrNotFound
}
