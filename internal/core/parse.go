package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/salesync/internal/schema"
	"github.com/shopspring/decimal"
)

// RowParser converts rows of a sales detail table into SalesRecords.
type RowParser struct {
	table *Table
}

// NewRowParser creates a parser bound to a decoded table.
func NewRowParser(t *Table) *RowParser {
	return &RowParser{table: t}
}

// Parse converts one row. Empty numeric cells are zero; anything else that
// does not convert yields a parse RowError carrying the raw cells.
func (p *RowParser) Parse(row Row) (*SalesRecord, *RowError) {
	cells := make(map[string]string, len(schema.SalesFieldSpecs))
	for _, spec := range schema.SalesFieldSpecs {
		v, ok := p.table.Cell(row, spec.Name)
		if !ok {
			return nil, p.fail(row, FieldError{Field: spec.Name, Message: "missing cell"})
		}
		cells[spec.Name] = v
	}

	qty, err := ParseQuantity(cells[schema.ColQty])
	if err != nil {
		return nil, p.fail(row, err)
	}
	price, err := parseMoney(schema.ColSalesPrice, cells[schema.ColSalesPrice])
	if err != nil {
		return nil, p.fail(row, err)
	}
	amount, err := parseMoney(schema.ColAmount, cells[schema.ColAmount])
	if err != nil {
		return nil, p.fail(row, err)
	}

	return &SalesRecord{
		Type:            strings.TrimSpace(cells[schema.ColType]),
		Date:            strings.TrimSpace(cells[schema.ColDate]),
		OrderNumber:     strings.TrimSpace(cells[schema.ColNum]),
		SourceName:      strings.TrimSpace(cells[schema.ColSourceName]),
		RawAddress:      cells[schema.ColAddress],
		ContactName:     strings.TrimSpace(cells[schema.ColContact]),
		Phone:           strings.TrimSpace(cells[schema.ColPhone]),
		Email:           strings.TrimSpace(cells[schema.ColEmail]),
		Memo:            cells[schema.ColMemo],
		PayerName:       strings.TrimSpace(cells[schema.ColName]),
		ItemText:        strings.TrimSpace(cells[schema.ColItem]),
		ItemDescription: strings.TrimSpace(cells[schema.ColItemDescription]),
		Quantity:        qty,
		UnitPrice:       price,
		LineAmount:      amount,
	}, nil
}

func (p *RowParser) fail(row Row, err error) *RowError {
	return &RowError{
		Kind:   KindParse,
		Row:    row.Number,
		Reason: err.Error(),
		Data:   p.table.RowMap(row),
		Err:    err,
	}
}

// ParseQuantity parses a quantity cell. Empty is zero, fractions truncate
// toward zero, negatives are rejected.
func ParseQuantity(s string) (int, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, FieldError{Field: schema.ColQty, Value: s, Message: "invalid quantity"}
	}
	if d.IsNegative() {
		return 0, FieldError{Field: schema.ColQty, Value: s, Message: "invalid quantity: must not be negative"}
	}
	if !d.LessThan(decimal.NewFromInt(1 << 31)) {
		return 0, FieldError{Field: schema.ColQty, Value: s, Message: "invalid quantity: too large"}
	}
	return int(d.IntPart()), nil
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		if errors.Is(err, ErrInvalidNumber) {
			return decimal.Zero, FieldError{Field: field, Value: s, Message: "invalid number"}
		}
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
