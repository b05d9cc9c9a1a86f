package ingest

import (
	"context"
	"testing"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportPeople(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	im := NewImporter(s, core.ReadOptions{}, 0)

	res, err := im.ImportPeople(ctx, "testdata/people.csv")
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, 2, res.Companies)
	assert.Equal(t, 3, res.People)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Row)
	assert.Equal(t, "VAL001", res.Errors[0].Code())

	_, err = s.FindPersonByEmail(ctx, "jane@roe.example")
	require.NoError(t, err, "emails are lower-cased")

	_, err = s.FindCompanyByDomain(ctx, store.UnknownDomain)
	require.NoError(t, err, "rows without a domain use the unknown company")

	assert.Equal(t, store.Counts{Companies: 3, People: 3}, counts(t, s))

	again, err := im.ImportPeople(ctx, "testdata/people.csv")
	require.NoError(t, err)
	assert.Zero(t, again.Companies)
	assert.Zero(t, again.People)
	assert.Equal(t, store.Counts{Companies: 3, People: 3}, counts(t, s))
}

func TestImportProducts(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	im := NewImporter(s, core.ReadOptions{}, 0)

	res, err := im.ImportProducts(ctx, "testdata/products.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Products)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)

	_, err = im.ImportProducts(ctx, "testdata/products.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts(t, s).Products)
}

func TestImportCombinedOrders(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	im := NewImporter(s, core.ReadOptions{}, 1)

	res, err := im.ImportCombinedOrders(ctx, "testdata/combined_orders.csv")
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalRows)
	assert.Equal(t, 2, res.Companies)
	assert.Equal(t, 2, res.People)
	assert.Equal(t, 2, res.Products)
	assert.Equal(t, 2, res.OrdersCreated)
	assert.Equal(t, 3, res.LineItems)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, core.KindParse, res.Errors[0].Kind)
	assert.Equal(t, "ROW001", res.Errors[0].Code())

	assert.Equal(t, store.Counts{Companies: 2, People: 2, Products: 2, Orders: 2, LineItems: 3}, counts(t, s))

	again, err := im.ImportCombinedOrders(ctx, "testdata/combined_orders.csv")
	require.NoError(t, err)
	assert.Zero(t, again.OrdersCreated)
	assert.Equal(t, 2, again.OrdersSkipped)
	assert.Equal(t, store.Counts{Companies: 2, People: 2, Products: 2, Orders: 2, LineItems: 3}, counts(t, s))
}

func TestGroupCombinedRows(t *testing.T) {
	rows := []combinedRow{
		{row: 1, date: "2017-03-01", email: "a@x.example", invoice: "INV-1"},
		{row: 2, date: "2017-03-01", email: "a@x.example", invoice: "INV-1"},
		{row: 3, date: "2017-03-01", email: "b@x.example", invoice: "INV-1"},
	}
	groups := groupCombinedRows(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].rows, 2)
	assert.Len(t, groups[1].rows, 1)
}
