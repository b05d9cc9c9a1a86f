package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustPerson(t *testing.T, s *Store, email string) int64 {
	t.Helper()
	id, _, err := s.CreatePerson(context.Background(), store.Person{Name: "Test " + email, Email: email})
	require.NoError(t, err)
	return id
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestCreateCompany_ReReadsOnConflict(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	id1, created, err := s.CreateCompany(ctx, store.Company{Name: "example.com", Domain: "example.com"})
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := s.CreateCompany(ctx, store.Company{Name: "other name", Domain: "example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	found, err := s.FindCompanyByDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, id1, found)

	_, err = s.FindCompanyByDomain(ctx, "missing.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersonLookups(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	companyID, _, err := s.CreateCompany(ctx, store.Company{Name: "x.com", Domain: "x.com"})
	require.NoError(t, err)

	first, created, err := s.CreatePerson(ctx, store.Person{
		Name: "Ann Lee", Email: "ann@x.com", Phone: "555-0100",
		Street: "1 Main St", State: "RI", Zip: "02816", Country: "US", CompanyID: &companyID,
	})
	require.NoError(t, err)
	require.True(t, created)

	// Same name, different email: lookups by name return the earliest row.
	second, _, err := s.CreatePerson(ctx, store.Person{Name: "Ann Lee", Email: "ann@y.com"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	byEmail, err := s.FindPersonByEmail(ctx, "ann@y.com")
	require.NoError(t, err)
	assert.Equal(t, second, byEmail)

	byPhone, err := s.FindPersonByPhone(ctx, "555-0100")
	require.NoError(t, err)
	assert.Equal(t, first, byPhone)

	byName, err := s.FindPersonByName(ctx, "Ann Lee")
	require.NoError(t, err)
	assert.Equal(t, first, byName)

	_, err = s.FindPersonByPhone(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestShippingProduct(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	id, created, err := s.ShippingProduct(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.ShippingProduct(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	bySKU, err := s.FindProductBySKU(ctx, "shipping")
	require.NoError(t, err)
	assert.Equal(t, id, bySKU)
}

func TestCreateOrders_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	personID := mustPerson(t, s, "a@x.com")
	productID, _, err := s.CreateProduct(ctx, store.Product{Name: "Widget", SKU: "W-1"})
	require.NoError(t, err)

	unit := store.OrderUnit{
		Order: store.Order{
			PersonID:    personID,
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Amount:      decimal.RequireFromString("126.00"),
			OrderNumber: "A1234",
			Channel:     "invoice",
		},
		Items: []store.LineItem{
			{ProductID: productID, UnitPrice: decimal.RequireFromString("63.00"), Quantity: 2, Amount: decimal.RequireFromString("126.00")},
		},
	}

	res, err := s.CreateOrders(ctx, []store.OrderUnit{unit})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.NoError(t, res[0].Err)
	assert.True(t, res[0].Created)
	assert.Len(t, res[0].LineItemIDs, 1)

	res2, err := s.CreateOrders(ctx, []store.OrderUnit{unit})
	require.NoError(t, err)
	require.NoError(t, res2[0].Err)
	assert.False(t, res2[0].Created)
	assert.Equal(t, res[0].OrderID, res2[0].OrderID)
	assert.Empty(t, res2[0].LineItemIDs)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Orders)
	assert.Equal(t, int64(1), counts.LineItems)

	amount, err := s.OrderAmount(ctx, "A1234")
	require.NoError(t, err)
	assert.Equal(t, "126", amount.String())
}

func TestCreateOrders_FailingUnitIsRolledBackAlone(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	personID := mustPerson(t, s, "a@x.com")
	productID, _, err := s.CreateProduct(ctx, store.Product{Name: "Widget", SKU: "W-1"})
	require.NoError(t, err)

	good := store.OrderUnit{
		Order: store.Order{PersonID: personID, OrderNumber: "3D-0001"},
		Items: []store.LineItem{{ProductID: productID, Quantity: 1}},
	}
	bad := store.OrderUnit{
		Order: store.Order{PersonID: personID, OrderNumber: "3D-0002"},
		Items: []store.LineItem{{ProductID: 9999, Quantity: 1}},
	}

	res, err := s.CreateOrders(ctx, []store.OrderUnit{good, bad})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.NoError(t, res[0].Err)
	assert.Error(t, res[1].Err)
	assert.Contains(t, res[1].Err.Error(), "create order 3D-0002")

	_, err = s.FindOrderByNumber(ctx, "3D-0001")
	assert.NoError(t, err)
	// The order row of the failing unit was rolled back with its line item.
	_, err = s.FindOrderByNumber(ctx, "3D-0002")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureCompanies_StagingMerge(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	existing, _, err := s.CreateCompany(ctx, store.Company{Name: "a.com", Domain: "a.com"})
	require.NoError(t, err)

	res, err := s.EnsureCompanies(ctx, []store.Company{
		{Name: "A Corp", Domain: "A.com"},
		{Name: "B Corp", Domain: "b.com"},
		{Name: "B again", Domain: "b.com"},
		{Name: "No domain", Domain: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, res.IDs, 2)
	assert.Equal(t, existing, res.IDs["a.com"])

	// Running the same merge again creates nothing and returns the same ids.
	again, err := s.EnsureCompanies(ctx, []store.Company{{Name: "B Corp", Domain: "b.com"}})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, res.IDs["b.com"], again.IDs["b.com"])
}

func TestEnsurePeopleAndProducts(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	unknown, err := s.EnsureUnknownCompany(ctx)
	require.NoError(t, err)
	again, err := s.EnsureUnknownCompany(ctx)
	require.NoError(t, err)
	assert.Equal(t, unknown, again)

	people, err := s.EnsurePeople(ctx, []store.Person{
		{Name: "Ann", Email: "ann@x.com", CompanyID: &unknown},
		{Name: "Bob", Email: "bob@x.com"},
		{Name: "No email"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, people.Created)
	assert.Len(t, people.IDs, 2)

	people2, err := s.EnsurePeople(ctx, []store.Person{{Name: "Ann B", Email: "ann@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, 0, people2.Created)
	assert.Equal(t, people.IDs["ann@x.com"], people2.IDs["ann@x.com"])

	products, err := s.EnsureProducts(ctx, []store.Product{{Name: "Widget", SKU: "W-1"}, {Name: "Gadget", SKU: "G-1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, products.Created)

	n, err := s.UpsertProducts(ctx, []store.Product{{Name: "Widget v2", Description: "new", SKU: "W-1"}, {Name: "Thing", SKU: "T-1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	id, err := s.FindProductBySKU(ctx, "W-1")
	require.NoError(t, err)
	assert.Equal(t, products.IDs["W-1"], id)

	var name string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT name FROM products WHERE sku = 'W-1'`).Scan(&name))
	assert.Equal(t, "Widget v2", name)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Companies: 1, People: 2, Products: 3}, counts)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordRun(ctx, store.Run{
			ID:            uuid.New(),
			FileName:      "sales.csv",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			Duration:      1500 * time.Millisecond,
			TotalRows:     10 + i,
			OrdersCreated: i,
			Status:        store.RunCompleted,
		}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 12, runs[0].TotalRows)
	assert.Equal(t, 11, runs[1].TotalRows)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.False(t, runs[0].DryRun)
	assert.NotEqual(t, uuid.Nil, runs[0].ID)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.db.ExecContext(ctx, `INSERT INTO products (name, sku) VALUES ('a', 'dup')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO products (name, sku) VALUES ('b', 'dup')`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(errors.New("unique")))
	assert.False(t, isUniqueViolation(nil))
}
