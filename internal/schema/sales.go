package schema

// Column names of the "Sales by Customer Detail" export.
const (
	ColType            = "Type"
	ColDate            = "Date"
	ColNum             = "Num"
	ColSourceName      = "Source Name"
	ColAddress         = "Name Address"
	ColContact         = "Name Contact"
	ColPhone           = "Name Phone #"
	ColEmail           = "Name E-Mail"
	ColMemo            = "Memo"
	ColName            = "Name"
	ColItem            = "Item"
	ColItemDescription = "Item Description"
	ColQty             = "Qty"
	ColSalesPrice      = "Sales Price"
	ColAmount          = "Amount"
)

// SalesFieldSpecs defines the expected columns of a sales detail export.
// Every column is required in the header; individual cells may be empty.
var SalesFieldSpecs = []FieldSpec{
	{Name: ColType, Type: FieldText, Required: true},
	{Name: ColDate, Type: FieldDate, Required: true},
	{Name: ColNum, Type: FieldText, Required: true},
	{Name: ColSourceName, Type: FieldText, Required: true},
	{Name: ColAddress, Type: FieldText, Required: true},
	{Name: ColContact, Type: FieldText, Required: true},
	{Name: ColPhone, Type: FieldText, Required: true},
	{Name: ColEmail, Type: FieldText, Required: true},
	{Name: ColMemo, Type: FieldText, Required: true},
	{Name: ColName, Type: FieldText, Required: true},
	{Name: ColItem, Type: FieldText, Required: true},
	{Name: ColItemDescription, Type: FieldText, Required: true},
	{Name: ColQty, Type: FieldInteger, Required: true},
	{Name: ColSalesPrice, Type: FieldNumeric, Required: true},
	{Name: ColAmount, Type: FieldNumeric, Required: true},
}
