package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/logging"
	"github.com/JonMunkholm/salesync/internal/store"
)

// Resolver maps the identity fields of sales records onto canonical
// entities. It holds all found-or-create decision logic; the Catalog decides
// whether creations are persisted or simulated.
type Resolver struct {
	catalog   Catalog
	matchers  []PersonMatcher
	synthetic *SyntheticEmails
	log       *DecisionLog
	recorder  Recorder

	// order is the order number decisions are attributed to.
	order string
}

// NewResolver creates a resolver for one run. A nil recorder discards
// metrics.
func NewResolver(catalog Catalog, synthetic *SyntheticEmails, log *DecisionLog, recorder Recorder) *Resolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Resolver{
		catalog:   catalog,
		matchers:  DefaultPersonMatchers,
		synthetic: synthetic,
		log:       log,
		recorder:  recorder,
	}
}

// ForOrder attributes subsequent decisions to orderNumber.
func (r *Resolver) ForOrder(orderNumber string) {
	r.order = orderNumber
}

func (r *Resolver) decide(ctx context.Context, d Decision) {
	d.OrderNumber = r.order
	r.log.Add(d)
	r.recorder.RecordDecision(string(d.Entity), string(d.Action))
	logging.FromContext(ctx).Debug("decision",
		"order_number", d.OrderNumber,
		"entity", d.Entity,
		"action", d.Action.Label(r.catalog.Simulated()),
		"key", d.Key,
		"id", d.ID,
		"basis", d.Basis,
	)
}

func createdAction(created bool) Action {
	if created {
		return ActionCreate
	}
	return ActionFound
}

// ResolveCompany returns the company for the domain of email. ok is false
// when email has no domain, which means "no company association".
func (r *Resolver) ResolveCompany(ctx context.Context, email string) (id int64, ok bool, err error) {
	domain := core.EmailDomain(email)
	if domain == "" {
		return 0, false, nil
	}

	id, err = r.catalog.FindCompanyByDomain(ctx, domain)
	if err == nil {
		r.decide(ctx, Decision{Entity: EntityCompany, Action: ActionFound, Key: domain, ID: id})
		return id, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, false, fmt.Errorf("resolve company %q: %w", domain, err)
	}

	id, created, err := r.catalog.CreateCompany(ctx, store.Company{Name: domain, Domain: domain})
	if err != nil {
		return 0, false, err
	}
	r.decide(ctx, Decision{Entity: EntityCompany, Action: createdAction(created), Key: domain, ID: id})
	return id, true, nil
}

// FindPerson runs the matchers in order and returns the first hit.
func (r *Resolver) FindPerson(ctx context.Context, q PersonQuery) (int64, MatchBasis, error) {
	return MatchPerson(ctx, r.catalog, r.matchers, q)
}

// PersonQueryFor derives the identity fields of rec. An amazon-channel
// record without an email gets a fabricated one; a list of emails is
// reduced to its first entry.
func (r *Resolver) PersonQueryFor(rec *core.SalesRecord) PersonQuery {
	email := rec.PrimaryEmail()
	if email == "" {
		if ch, err := rec.Channel(); err == nil && ch == core.ChannelAmazon {
			email = r.synthetic.Next()
		}
	}
	return PersonQuery{
		Email: email,
		Phone: strings.TrimSpace(rec.Phone),
		Name:  rec.PersonName(),
	}
}

// HandlePerson returns the person for rec, creating one (with its company
// and parsed address) when no matcher hits. Existing people are never
// modified.
func (r *Resolver) HandlePerson(ctx context.Context, rec *core.SalesRecord) (int64, error) {
	q := r.PersonQueryFor(rec)
	key := personKey(q)

	id, basis, err := r.FindPerson(ctx, q)
	if err == nil {
		r.decide(ctx, Decision{Entity: EntityPerson, Action: ActionFound, Key: key, ID: id, Basis: basis})
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("resolve person %q: %w", key, err)
	}

	addr, err := core.ParseAddress(rec.RawAddress)
	if err != nil {
		return 0, fmt.Errorf("resolve person %q: %w", key, err)
	}

	p := store.Person{
		Name:    q.Name,
		Email:   q.Email,
		Phone:   q.Phone,
		Street:  addr.Street,
		City:    addr.City,
		State:   addr.State,
		Zip:     addr.ZipCode,
		Country: addr.Country,
	}

	companyID, ok, err := r.ResolveCompany(ctx, q.Email)
	if err != nil {
		return 0, err
	}
	if ok {
		p.CompanyID = &companyID
	}

	id, created, err := r.catalog.CreatePerson(ctx, p)
	if err != nil {
		return 0, err
	}
	r.decide(ctx, Decision{Entity: EntityPerson, Action: createdAction(created), Key: key, ID: id})
	return id, nil
}

func personKey(q PersonQuery) string {
	switch {
	case q.Email != "":
		return q.Email
	case q.Phone != "":
		return q.Phone
	default:
		return q.Name
	}
}

// FindOrCreateProduct returns the product for the record's SKU. The shipping
// SKU goes through the dedicated shipping accessor.
func (r *Resolver) FindOrCreateProduct(ctx context.Context, rec *core.SalesRecord) (int64, error) {
	sku, err := rec.SKU()
	if err != nil {
		return 0, fmt.Errorf("resolve product: %w", err)
	}

	if sku == core.ShippingSKU {
		id, created, err := r.catalog.ShippingProduct(ctx)
		if err != nil {
			return 0, err
		}
		r.decide(ctx, Decision{Entity: EntityProduct, Action: createdAction(created), Key: sku, ID: id})
		return id, nil
	}

	id, err := r.catalog.FindProductBySKU(ctx, sku)
	if err == nil {
		r.decide(ctx, Decision{Entity: EntityProduct, Action: ActionFound, Key: sku, ID: id})
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("resolve product %q: %w", sku, err)
	}

	desc := strings.TrimSpace(rec.ItemDescription)
	if desc == "" {
		desc = rec.ItemText
	}
	id, created, err := r.catalog.CreateProduct(ctx, store.Product{Name: rec.ItemText, Description: desc, SKU: sku})
	if err != nil {
		return 0, err
	}
	r.decide(ctx, Decision{Entity: EntityProduct, Action: createdAction(created), Key: sku, ID: id})
	return id, nil
}

// CreateOrder writes unit keyed by its order number. An order number that
// already exists is kept as is and its line items are not re-inserted.
func (r *Resolver) CreateOrder(ctx context.Context, unit store.OrderUnit) (store.OrderResult, error) {
	res, err := r.catalog.CreateOrder(ctx, unit)
	if err != nil {
		return res, err
	}

	num := unit.Order.OrderNumber
	if !res.Created {
		r.decide(ctx, Decision{Entity: EntityOrder, Action: ActionSkipExisting, Key: num, ID: res.OrderID})
		return res, nil
	}
	r.decide(ctx, Decision{Entity: EntityOrder, Action: ActionCreate, Key: num, ID: res.OrderID})
	for i, id := range res.LineItemIDs {
		key := fmt.Sprintf("%s#%d", num, i+1)
		r.decide(ctx, Decision{Entity: EntityLineItem, Action: ActionCreate, Key: key, ID: id})
	}
	return res, nil
}
