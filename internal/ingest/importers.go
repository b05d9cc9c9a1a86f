package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/logging"
	"github.com/JonMunkholm/salesync/internal/schema"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultBatchSize is the number of orders written per transaction by the
// combined-order import.
const DefaultBatchSize = 50

// combinedOrderChannel is the channel recorded for combined-order rows,
// which all come from the storefront.
const combinedOrderChannel = string(core.ChannelOnlineStore)

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Kind      string
	FileName  string
	TotalRows int

	Companies     int // created
	People        int // created
	Products      int // created or updated
	OrdersCreated int
	OrdersSkipped int
	LineItems     int

	Errors []*core.RowError
}

// Importer loads the auxiliary exports: people, the product catalog and
// combined order rows. Unlike sales ingestion these always write.
type Importer struct {
	store     store.Store
	read      core.ReadOptions
	batchSize int
}

// NewImporter creates an importer. A batchSize below 1 uses DefaultBatchSize.
func NewImporter(s store.Store, read core.ReadOptions, batchSize int) *Importer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Importer{store: s, read: read, batchSize: batchSize}
}

func (im *Importer) readTable(path string, specs []schema.FieldSpec) (*core.Table, error) {
	opts := im.read
	opts.Required = schema.RequiredNames(specs)
	return core.ReadCSVFile(path, opts)
}

func cell(t *core.Table, row core.Row, col string) string {
	v, _ := t.Cell(row, col)
	return strings.TrimSpace(v)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// personRow is one person to ensure together with the company it belongs to.
type personRow struct {
	person  store.Person
	company store.Company // zero Domain means the unknown company
}

// ensurePeople ensures the companies of rows, then the people, and returns
// the people ids keyed by email.
func (im *Importer) ensurePeople(ctx context.Context, rows []personRow, res *ImportResult) (map[string]int64, error) {
	companies := make([]store.Company, 0, len(rows))
	needUnknown := false
	for _, r := range rows {
		if r.company.Domain == "" {
			needUnknown = true
			continue
		}
		companies = append(companies, r.company)
	}

	companyIDs, err := im.store.EnsureCompanies(ctx, companies)
	if err != nil {
		return nil, err
	}
	res.Companies += companyIDs.Created

	var unknownID int64
	if needUnknown {
		if unknownID, err = im.store.EnsureUnknownCompany(ctx); err != nil {
			return nil, err
		}
	}

	people := make([]store.Person, 0, len(rows))
	for _, r := range rows {
		p := r.person
		id := unknownID
		if r.company.Domain != "" {
			id = companyIDs.IDs[strings.ToLower(r.company.Domain)]
		}
		p.CompanyID = &id
		people = append(people, p)
	}

	peopleIDs, err := im.store.EnsurePeople(ctx, people)
	if err != nil {
		return nil, err
	}
	res.People += peopleIDs.Created
	return peopleIDs.IDs, nil
}

// ImportPeople loads a people export. People already present by email are
// left untouched; rows without a domain belong to the unknown company.
func (im *Importer) ImportPeople(ctx context.Context, path string) (*ImportResult, error) {
	res := &ImportResult{Kind: "people", FileName: filepath.Base(path)}
	t, err := im.readTable(path, schema.PeopleFieldSpecs)
	if err != nil {
		return res, err
	}
	res.TotalRows = len(t.Rows)

	var rows []personRow
	for _, row := range t.Rows {
		email := normalizeEmail(cell(t, row, "email"))
		if email == "" {
			res.Errors = append(res.Errors, &core.RowError{
				Kind:   core.KindValidation,
				Row:    row.Number,
				Reason: "missing email",
				Data:   t.RowMap(row),
			})
			continue
		}
		name := strings.TrimSpace(cell(t, row, "first") + " " + cell(t, row, "last"))
		domain := strings.ToLower(cell(t, row, "domain"))
		rows = append(rows, personRow{
			person:  store.Person{Name: name, Email: email},
			company: store.Company{Name: cell(t, row, "company"), Domain: domain},
		})
	}

	if _, err := im.ensurePeople(ctx, rows, res); err != nil {
		return res, fmt.Errorf("import people: %w", err)
	}
	logging.FromContext(ctx).Info("people imported",
		"file", res.FileName,
		"rows", res.TotalRows,
		"companies_created", res.Companies,
		"people_created", res.People,
	)
	return res, nil
}

// ImportProducts loads a product catalog. Existing SKUs get their name and
// description updated.
func (im *Importer) ImportProducts(ctx context.Context, path string) (*ImportResult, error) {
	res := &ImportResult{Kind: "products", FileName: filepath.Base(path)}
	t, err := im.readTable(path, schema.ProductFieldSpecs)
	if err != nil {
		return res, err
	}
	res.TotalRows = len(t.Rows)

	var products []store.Product
	for _, row := range t.Rows {
		sku := cell(t, row, "sku")
		if sku == "" {
			res.Errors = append(res.Errors, &core.RowError{
				Kind:   core.KindValidation,
				Row:    row.Number,
				Reason: "unable to extract SKU from item: empty sku",
				Data:   t.RowMap(row),
			})
			continue
		}
		products = append(products, store.Product{
			Name:        cell(t, row, "name"),
			Description: cell(t, row, "description"),
			SKU:         sku,
		})
	}

	n, err := im.store.UpsertProducts(ctx, products)
	if err != nil {
		return res, fmt.Errorf("import products: %w", err)
	}
	res.Products = n
	logging.FromContext(ctx).Info("products imported", "file", res.FileName, "rows", res.TotalRows, "upserted", n)
	return res, nil
}

// combinedRow is one parsed combined-order row.
type combinedRow struct {
	row         int
	date        string
	orderAmount decimal.Decimal
	email       string
	sku         string
	quantity    int
	unitPrice   decimal.Decimal
	invoice     string
}

type combinedKey struct {
	date    string
	email   string
	amount  string
	invoice string
}

type combinedGroup struct {
	key  combinedKey
	rows []combinedRow
}

// ImportCombinedOrders loads a storefront export where every row holds an
// order header and one line item. People, companies and products are
// ensured in bulk first; orders whose invoice number already exists are
// skipped, and the rest are written in batches.
func (im *Importer) ImportCombinedOrders(ctx context.Context, path string) (*ImportResult, error) {
	res := &ImportResult{Kind: "combined-orders", FileName: filepath.Base(path)}
	t, err := im.readTable(path, schema.CombinedOrderFieldSpecs)
	if err != nil {
		return res, err
	}
	res.TotalRows = len(t.Rows)

	var (
		rows     []combinedRow
		people   []personRow
		products []store.Product
	)
	for _, row := range t.Rows {
		cr, err := parseCombinedRow(t, row)
		if err != nil {
			res.Errors = append(res.Errors, &core.RowError{
				Kind:   core.KindParse,
				Row:    row.Number,
				Reason: err.Error(),
				Data:   t.RowMap(row),
				Err:    err,
			})
			continue
		}
		rows = append(rows, cr)

		name := strings.TrimSpace(cell(t, row, "ofirstname") + " " + cell(t, row, "olastname"))
		domain := strings.ToLower(cell(t, row, "Domain"))
		if domain == "" {
			domain = core.EmailDomain(cr.email)
		}
		people = append(people, personRow{
			person:  store.Person{Name: name, Email: cr.email},
			company: store.Company{Name: cell(t, row, "ocompany"), Domain: domain},
		})

		itemName := cell(t, row, "itemname")
		if itemName == "" {
			itemName = cr.sku
		}
		products = append(products, store.Product{Name: itemName, Description: itemName, SKU: cr.sku})
	}

	personIDs, err := im.ensurePeople(ctx, people, res)
	if err != nil {
		return res, fmt.Errorf("import combined orders: %w", err)
	}
	productIDs, err := im.store.EnsureProducts(ctx, products)
	if err != nil {
		return res, fmt.Errorf("import combined orders: %w", err)
	}
	res.Products = productIDs.Created

	var (
		units  []store.OrderUnit
		groups []*combinedGroup
	)
	for _, g := range groupCombinedRows(rows) {
		if _, err := im.store.FindOrderByNumber(ctx, g.key.invoice); err == nil {
			res.OrdersSkipped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("import combined orders: %w", err)
		}
		units = append(units, combinedUnit(g, personIDs, productIDs.IDs))
		groups = append(groups, g)
	}

	for start := 0; start < len(units); start += im.batchSize {
		end := min(start+im.batchSize, len(units))
		results, err := im.store.CreateOrders(ctx, units[start:end])
		if err != nil {
			return res, fmt.Errorf("import combined orders: %w", err)
		}
		for i, r := range results {
			switch {
			case r.Err != nil:
				for _, cr := range groups[start+i].rows {
					res.Errors = append(res.Errors, &core.RowError{
						Kind:   core.KindResolution,
						Row:    cr.row,
						Reason: r.Err.Error(),
						Err:    r.Err,
					})
				}
			case r.Created:
				res.OrdersCreated++
				res.LineItems += len(r.LineItemIDs)
			default:
				res.OrdersSkipped++
			}
		}
	}

	core.SortRowErrors(res.Errors)
	logging.FromContext(ctx).Info("combined orders imported",
		"file", res.FileName,
		"rows", res.TotalRows,
		"orders_created", res.OrdersCreated,
		"orders_skipped", res.OrdersSkipped,
		"errors", len(res.Errors),
	)
	return res, nil
}

func parseCombinedRow(t *core.Table, row core.Row) (combinedRow, error) {
	cr := combinedRow{
		row:     row.Number,
		date:    cell(t, row, "odate"),
		email:   normalizeEmail(cell(t, row, "oemail")),
		sku:     cell(t, row, "itemid"),
		invoice: cell(t, row, "invoicenum"),
	}
	if cr.email == "" {
		return cr, errors.New("missing email")
	}
	if cr.sku == "" {
		return cr, errors.New("unable to extract SKU from item: empty itemid")
	}
	if cr.invoice == "" {
		return cr, errors.New("invalid order number format: empty invoicenum")
	}

	var err error
	if cr.quantity, err = core.ParseQuantity(cell(t, row, "numitems")); err != nil {
		return cr, err
	}
	if cr.unitPrice, err = core.ParseDecimal(cell(t, row, "unitprice")); err != nil {
		return cr, fmt.Errorf("unitprice: %w", err)
	}
	if cr.orderAmount, err = core.ParseDecimal(cell(t, row, "orderamount")); err != nil {
		return cr, fmt.Errorf("orderamount: %w", err)
	}
	return cr, nil
}

// groupCombinedRows groups rows by date, email, order amount and invoice
// number, in order of first appearance.
func groupCombinedRows(rows []combinedRow) []*combinedGroup {
	var groups []*combinedGroup
	index := make(map[combinedKey]*combinedGroup)
	for _, r := range rows {
		key := combinedKey{date: r.date, email: r.email, amount: r.orderAmount.String(), invoice: r.invoice}
		g, ok := index[key]
		if !ok {
			g = &combinedGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}
	return groups
}

func combinedUnit(g *combinedGroup, people, products map[string]int64) store.OrderUnit {
	first := g.rows[0]
	date, _ := core.ParseDate(first.date)
	unit := store.OrderUnit{
		Order: store.Order{
			PersonID:    people[first.email],
			Date:        date,
			Amount:      first.orderAmount,
			OrderNumber: first.invoice,
			Channel:     combinedOrderChannel,
			Source:      "combined_order",
		},
	}
	for _, r := range g.rows {
		unit.Items = append(unit.Items, store.LineItem{
			ProductID: products[r.sku],
			UnitPrice: r.unitPrice,
			Quantity:  r.quantity,
			Amount:    r.unitPrice.Mul(decimal.NewFromInt(int64(r.quantity))),
		})
	}
	return unit
}
