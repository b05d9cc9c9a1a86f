package core

import (
	"strings"
	"testing"

	"github.com/JonMunkholm/salesync/internal/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T) *Table {
	t.Helper()
	tbl, err := ReadCSVFile("testdata/sales.csv", ReadOptions{Required: schema.RequiredNames(schema.SalesFieldSpecs)})
	require.NoError(t, err)
	return tbl
}

func TestRowParser_Fixture(t *testing.T) {
	tbl := readFixture(t)
	require.Len(t, tbl.Rows, 10)

	parser := NewRowParser(tbl)
	validator := NewRecordValidator("")

	var valid []*SalesRecord
	var parseErrs []*RowError
	for _, row := range tbl.Rows {
		rec, perr := parser.Parse(row)
		if perr != nil {
			parseErrs = append(parseErrs, perr)
			continue
		}
		if validator.Validate(rec, row.Number) {
			valid = append(valid, rec)
		}
	}

	require.Len(t, valid, 5)
	require.Len(t, parseErrs, 1)
	assert.Equal(t, 8, parseErrs[0].Row)
	assert.Equal(t, KindParse, parseErrs[0].Kind)
	assert.Equal(t, "two", parseErrs[0].Data["Qty"])
	assert.Equal(t, "ROW001", parseErrs[0].Code())

	verrs := validator.Errors()
	require.Len(t, verrs, 4)
	rows := []int{verrs[0].Row, verrs[1].Row, verrs[2].Row, verrs[3].Row}
	assert.Equal(t, []int{6, 7, 9, 10}, rows)
	for _, e := range verrs {
		assert.Equal(t, KindValidation, e.Kind)
		assert.NotNil(t, e.Record)
	}

	byNum := map[string]*SalesRecord{}
	for _, r := range valid {
		byNum[r.OrderNumber] = r
	}

	amazon := byNum["610-4148257"]
	ch, _ := amazon.Channel()
	sku, _ := amazon.SKU()
	assert.Equal(t, ChannelAmazon, ch)
	assert.Equal(t, "01-6310.38K", sku)

	store := byNum["3D-1234"]
	ch, _ = store.Channel()
	assert.Equal(t, ChannelOnlineStore, ch)
	assert.Equal(t, 2, store.Quantity)

	inv := byNum["A1234"]
	ch, _ = inv.Channel()
	assert.Equal(t, ChannelInvoice, ch)
	assert.True(t, inv.LineAmount.Equal(decimal.RequireFromString("126.00")))

	fba := byNum["912-3712214"]
	ch, _ = fba.Channel()
	assert.Equal(t, ChannelAmazon, ch)
	assert.Empty(t, fba.Email)
	assert.Equal(t, DefaultFBASource, fba.SourceName)

	ship := byNum["912-3712215"]
	sku, _ = ship.SKU()
	assert.Equal(t, ShippingSKU, sku)
}

func TestRowParser_Numbers(t *testing.T) {
	header := strings.Join(schema.Names(schema.SalesFieldSpecs), ",")
	tests := []struct {
		name      string
		qty       string
		price     string
		amount    string
		wantQty   int
		wantPrice string
		wantErr   string
	}{
		{"plain", "3", "1.50", "4.50", 3, "1.5", ""},
		{"empty numerics are zero", "", "", "", 0, "0", ""},
		{"fractional quantity truncates", "2.9", `"$1,000.00"`, "2900", 2, "1000", ""},
		{"negative quantity", "-1", "1", "1", 0, "", "invalid quantity"},
		{"text quantity", "two", "1", "1", 0, "", "invalid quantity"},
		{"text price", "1", "abc", "1", 0, "", "invalid number"},
		{"accounting negative amount is a number", "1", "1", "(5.00)", 1, "1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := "Invoice,1/1/2020,A1234,,\"1 A St, RI 02816 US\",C,P,e@x.com,,N,ABC-1 (x),x," +
				tt.qty + "," + tt.price + "," + tt.amount
			tbl, err := ReadCSV(strings.NewReader(header+"\n"+line+"\n"), "x.csv", ReadOptions{})
			require.NoError(t, err)

			rec, perr := NewRowParser(tbl).Parse(tbl.Rows[0])
			if tt.wantErr != "" {
				require.NotNil(t, perr)
				assert.Contains(t, perr.Reason, tt.wantErr)
				assert.Equal(t, 1, perr.Row)
				return
			}
			require.Nil(t, perr)
			assert.Equal(t, tt.wantQty, rec.Quantity)
			assert.Equal(t, tt.wantPrice, rec.UnitPrice.String())
		})
	}
}

func TestRowParser_ShortRow(t *testing.T) {
	header := strings.Join(schema.Names(schema.SalesFieldSpecs), ",")
	tbl, err := ReadCSV(strings.NewReader(header+"\nInvoice,1/1/2020,A1234\n"), "x.csv", ReadOptions{})
	require.NoError(t, err)

	_, perr := NewRowParser(tbl).Parse(tbl.Rows[0])
	require.NotNil(t, perr)
	assert.Contains(t, perr.Reason, "missing cell")
	assert.Equal(t, "ROW003", perr.Code())
}
