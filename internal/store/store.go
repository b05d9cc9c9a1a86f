// Package store defines the canonical relational model (companies, people,
// products, orders, line items) and the storage interface the ingestion
// engine writes through. Implementations live in the postgres and sqlite
// subpackages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Reserved keys.
const (
	UnknownDomain      = "unknown"
	UnknownCompanyName = "Unknown Company"
)

// Shipping is the reserved product every shipping line item points at.
var Shipping = Product{
	Name:        "Shipping",
	Description: "Shipping and handling",
	SKU:         "shipping",
}

// Company is keyed by its lower-cased domain.
type Company struct {
	ID     int64
	Name   string
	Domain string
}

// Person is keyed by email when one is present.
type Person struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Street    string
	City      string
	State     string
	Zip       string
	Country   string
	CompanyID *int64
}

// Product is keyed by SKU.
type Product struct {
	ID          int64
	Name        string
	Description string
	SKU         string
}

// Order is keyed by its order number. A zero Date is stored as NULL.
type Order struct {
	ID          int64
	PersonID    int64
	Date        time.Time
	Amount      decimal.Decimal
	OrderNumber string
	Channel     string
	Source      string
}

// LineItem amounts are stored as given and never recomputed.
type LineItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
	Amount    decimal.Decimal
}

// OrderUnit is one order with the line items grouped into it. A unit is
// written atomically.
type OrderUnit struct {
	Order Order
	Items []LineItem
}

// OrderResult reports what happened to one OrderUnit.
// Created is false when the order number already existed; in that case no
// line items were written and LineItemIDs is empty.
type OrderResult struct {
	OrderNumber string
	OrderID     int64
	Created     bool
	LineItemIDs []int64
	Err         error
}

// EnsureResult maps natural keys to ids after a bulk ensure.
type EnsureResult struct {
	IDs     map[string]int64
	Created int
}

// Run status values.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one recorded ingestion.
type Run struct {
	ID               uuid.UUID
	FileName         string
	StartedAt        time.Time
	Duration         time.Duration
	DryRun           bool
	TotalRows        int
	ValidRecords     int
	Errors           int
	OrdersCreated    int
	OrdersSkipped    int
	LineItemsCreated int
	Status           string
}

// Counts holds the number of rows in each entity table.
type Counts struct {
	Companies int64
	People    int64
	Products  int64
	Orders    int64
	LineItems int64
}

// Reader looks up canonical entities by natural key. Person lookups return
// the lowest id when several rows match.
type Reader interface {
	FindCompanyByDomain(ctx context.Context, domain string) (int64, error)
	FindPersonByEmail(ctx context.Context, email string) (int64, error)
	FindPersonByPhone(ctx context.Context, phone string) (int64, error)
	FindPersonByName(ctx context.Context, name string) (int64, error)
	FindProductBySKU(ctx context.Context, sku string) (int64, error)
	FindOrderByNumber(ctx context.Context, orderNumber string) (int64, error)
}

// Store is the transactional interface of a backend.
//
// Create methods insert with "do nothing on conflict" semantics and re-read
// by natural key, so created reports whether this call inserted the row.
type Store interface {
	Reader

	CreateCompany(ctx context.Context, c Company) (id int64, created bool, err error)
	CreatePerson(ctx context.Context, p Person) (id int64, created bool, err error)
	CreateProduct(ctx context.Context, p Product) (id int64, created bool, err error)

	// ShippingProduct returns the reserved shipping product, creating it on
	// first use. It runs on its own connection outside any caller transaction
	// and recovers from a concurrent first creation by re-reading.
	ShippingProduct(ctx context.Context) (id int64, created bool, err error)

	// CreateOrders writes units in one transaction with a savepoint per unit.
	// A failing unit is rolled back and reported in its OrderResult.Err; the
	// returned error is reserved for failures of the transaction itself.
	CreateOrders(ctx context.Context, units []OrderUnit) ([]OrderResult, error)

	// Bulk operations use staging-then-merge: rows are copied into a
	// temporary table, missing keys are inserted, and old and new ids are
	// read back together.
	EnsureUnknownCompany(ctx context.Context) (int64, error)
	EnsureCompanies(ctx context.Context, companies []Company) (EnsureResult, error)
	EnsurePeople(ctx context.Context, people []Person) (EnsureResult, error)
	EnsureProducts(ctx context.Context, products []Product) (EnsureResult, error)
	UpsertProducts(ctx context.Context, products []Product) (int, error)

	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Counts(ctx context.Context) (Counts, error)

	// Init applies the embedded schema. It is idempotent.
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// DedupeCompanies drops rows with an empty or repeated domain, keeping the
// first occurrence. Domains are lower-cased.
func DedupeCompanies(in []Company) []Company {
	seen := make(map[string]struct{}, len(in))
	out := make([]Company, 0, len(in))
	for _, c := range in {
		c.Domain = normalizeKey(c.Domain)
		if c.Domain == "" {
			continue
		}
		if _, ok := seen[c.Domain]; ok {
			continue
		}
		seen[c.Domain] = struct{}{}
		if c.Name == "" {
			c.Name = c.Domain
		}
		out = append(out, c)
	}
	return out
}

// DedupePeople drops rows with an empty or repeated email, keeping the first.
func DedupePeople(in []Person) []Person {
	seen := make(map[string]struct{}, len(in))
	out := make([]Person, 0, len(in))
	for _, p := range in {
		if p.Email == "" {
			continue
		}
		if _, ok := seen[p.Email]; ok {
			continue
		}
		seen[p.Email] = struct{}{}
		out = append(out, p)
	}
	return out
}

// DedupeProducts drops rows with an empty or repeated SKU, keeping the first.
func DedupeProducts(in []Product) []Product {
	seen := make(map[string]struct{}, len(in))
	out := make([]Product, 0, len(in))
	for _, p := range in {
		if p.SKU == "" {
			continue
		}
		if _, ok := seen[p.SKU]; ok {
			continue
		}
		seen[p.SKU] = struct{}{}
		out = append(out, p)
	}
	return out
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
