package schema

// PeopleFieldSpecs defines the columns of a bulk people export.
var PeopleFieldSpecs = []FieldSpec{
	{Name: "first", Type: FieldText, Required: true},
	{Name: "last", Type: FieldText, Required: true},
	{Name: "email", Type: FieldText, Required: true},
	{Name: "company", Type: FieldText},
	{Name: "domain", Type: FieldText},
}

// ProductFieldSpecs defines the columns of a product catalog export.
var ProductFieldSpecs = []FieldSpec{
	{Name: "name", Type: FieldText, Required: true},
	{Name: "sku", Type: FieldText, Required: true},
	{Name: "description", Type: FieldText},
}

// CombinedOrderFieldSpecs defines the columns of the storefront export where
// each row carries an order header and one line item.
var CombinedOrderFieldSpecs = []FieldSpec{
	{Name: "odate", Type: FieldDate, Required: true},
	{Name: "orderamount", Type: FieldNumeric, Required: true},
	{Name: "ofirstname", Type: FieldText},
	{Name: "olastname", Type: FieldText},
	{Name: "oemail", Type: FieldText, Required: true},
	{Name: "Domain", Type: FieldText},
	{Name: "ocompany", Type: FieldText},
	{Name: "itemid", Type: FieldText, Required: true},
	{Name: "itemname", Type: FieldText},
	{Name: "numitems", Type: FieldInteger, Required: true},
	{Name: "unitprice", Type: FieldNumeric, Required: true},
	{Name: "invoicenum", Type: FieldText, Required: true},
}
