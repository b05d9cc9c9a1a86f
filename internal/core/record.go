package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Channel is the sales channel an order was placed through.
type Channel string

const (
	ChannelAmazon      Channel = "amazon"
	ChannelOnlineStore Channel = "online_store"
	ChannelInvoice     Channel = "invoice"
)

// ShippingSKU is the reserved SKU of the shipping line item product.
const ShippingSKU = "shipping"

// Sentinel errors wrapped by ClassifyChannel and ExtractSKU.
var (
	ErrUnknownChannel = errors.New("invalid order number format")
	ErrNoSKU          = errors.New("unable to extract SKU from item")
)

// channelPatterns are tried in order; the first match wins. Patterns are
// anchored at the start only, so trailing suffixes such as the third group of
// a marketplace order id are accepted.
var channelPatterns = []struct {
	channel Channel
	re      *regexp.Regexp
}{
	{ChannelAmazon, regexp.MustCompile(`^\d{3}-\d{7}`)},
	{ChannelOnlineStore, regexp.MustCompile(`^3D-\d{4}`)},
	{ChannelInvoice, regexp.MustCompile(`^A\d{4}`)},
}

// skuPattern captures the SKU token in item text like "01-6310.38K (Widget)".
var skuPattern = regexp.MustCompile(`^([\w\-.]+)\s*\(`)

// ClassifyChannel derives the sales channel from an order number.
func ClassifyChannel(orderNumber string) (Channel, error) {
	num := strings.TrimSpace(orderNumber)
	for _, p := range channelPatterns {
		if p.re.MatchString(num) {
			return p.channel, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, orderNumber)
}

// ExtractSKU derives the SKU from an item cell. The literal "shipping"
// (any case) maps to ShippingSKU.
func ExtractSKU(itemText string) (string, error) {
	item := strings.TrimSpace(itemText)
	if strings.EqualFold(item, ShippingSKU) {
		return ShippingSKU, nil
	}
	m := skuPattern.FindStringSubmatch(item)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoSKU, itemText)
	}
	return m[1], nil
}

// SalesRecord is one typed line of a sales detail export.
// Channel and SKU are derived on first use and cached.
type SalesRecord struct {
	Type            string
	Date            string
	OrderNumber     string
	SourceName      string
	RawAddress      string
	ContactName     string
	Phone           string
	Email           string
	Memo            string
	PayerName       string
	ItemText        string
	ItemDescription string
	Quantity        int
	UnitPrice       decimal.Decimal
	LineAmount      decimal.Decimal

	channel    Channel
	channelErr error
	channelSet bool

	sku    string
	skuErr error
	skuSet bool
}

// Channel returns the record's sales channel.
func (r *SalesRecord) Channel() (Channel, error) {
	if !r.channelSet {
		r.channel, r.channelErr = ClassifyChannel(r.OrderNumber)
		r.channelSet = true
	}
	return r.channel, r.channelErr
}

// SKU returns the record's product SKU.
func (r *SalesRecord) SKU() (string, error) {
	if !r.skuSet {
		r.sku, r.skuErr = ExtractSKU(r.ItemText)
		r.skuSet = true
	}
	return r.sku, r.skuErr
}

// PrimaryEmail returns the first address of a possibly ";"-separated list.
func (r *SalesRecord) PrimaryEmail() string {
	return FirstEmail(r.Email)
}

// PersonName is the best available display name for the customer.
func (r *SalesRecord) PersonName() string {
	if n := strings.TrimSpace(r.ContactName); n != "" {
		return n
	}
	return strings.TrimSpace(r.PayerName)
}

// FirstEmail returns the first entry of a ";"-separated email list.
func FirstEmail(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// EmailDomain returns the lower-cased domain of email, or "" when it has none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
