package ingest

import (
	"context"
	"errors"

	"github.com/JonMunkholm/salesync/internal/store"
)

// Catalog is what the resolver reads from and writes to. Reads always reach
// the real store; writes are persisted by the live catalog and simulated by
// the dry-run catalog. Create methods report whether the call created the
// row, so both modes feed the same decision log.
type Catalog interface {
	store.Reader

	CreateCompany(ctx context.Context, c store.Company) (int64, bool, error)
	CreatePerson(ctx context.Context, p store.Person) (int64, bool, error)
	CreateProduct(ctx context.Context, p store.Product) (int64, bool, error)
	ShippingProduct(ctx context.Context) (int64, bool, error)
	CreateOrder(ctx context.Context, unit store.OrderUnit) (store.OrderResult, error)

	Simulated() bool
}

// NewLiveCatalog persists through s.
func NewLiveCatalog(s store.Store) Catalog {
	return &liveCatalog{Store: s}
}

type liveCatalog struct {
	store.Store
}

func (c *liveCatalog) CreateOrder(ctx context.Context, unit store.OrderUnit) (store.OrderResult, error) {
	results, err := c.Store.CreateOrders(ctx, []store.OrderUnit{unit})
	if err != nil {
		return store.OrderResult{OrderNumber: unit.Order.OrderNumber}, err
	}
	res := results[0]
	return res, res.Err
}

func (c *liveCatalog) Simulated() bool { return false }

// NewSimulatedCatalog reads from r and keeps every creation in memory,
// issuing ids from alloc. Nothing is written to r.
func NewSimulatedCatalog(r store.Reader, alloc *IDAllocator) Catalog {
	return &simulatedCatalog{
		real:      r,
		alloc:     alloc,
		companies: make(map[string]int64),
		emails:    make(map[string]int64),
		phones:    make(map[string]int64),
		names:     make(map[string]int64),
		products:  make(map[string]int64),
		orders:    make(map[string]int64),
	}
}

// simulatedCatalog overlays simulated rows on the real store. Overlay rows
// only exist for keys the store did not have when they were created.
type simulatedCatalog struct {
	real  store.Reader
	alloc *IDAllocator

	companies map[string]int64
	emails    map[string]int64
	phones    map[string]int64
	names     map[string]int64
	products  map[string]int64
	orders    map[string]int64
}

func (c *simulatedCatalog) Simulated() bool { return true }

// lookup checks the overlay, then the real store.
func lookup(ctx context.Context, overlay map[string]int64, key string, find func(context.Context, string) (int64, error)) (int64, error) {
	if id, ok := overlay[key]; ok {
		return id, nil
	}
	return find(ctx, key)
}

func (c *simulatedCatalog) FindCompanyByDomain(ctx context.Context, domain string) (int64, error) {
	return lookup(ctx, c.companies, domain, c.real.FindCompanyByDomain)
}

func (c *simulatedCatalog) FindPersonByEmail(ctx context.Context, email string) (int64, error) {
	return lookup(ctx, c.emails, email, c.real.FindPersonByEmail)
}

// Phone and name lookups prefer the real store: its rows are older, and the
// store returns the lowest matching id.
func (c *simulatedCatalog) FindPersonByPhone(ctx context.Context, phone string) (int64, error) {
	return realFirst(ctx, c.phones, phone, c.real.FindPersonByPhone)
}

func (c *simulatedCatalog) FindPersonByName(ctx context.Context, name string) (int64, error) {
	return realFirst(ctx, c.names, name, c.real.FindPersonByName)
}

func realFirst(ctx context.Context, overlay map[string]int64, key string, find func(context.Context, string) (int64, error)) (int64, error) {
	id, err := find(ctx, key)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return id, err
	}
	if id, ok := overlay[key]; ok {
		return id, nil
	}
	return 0, store.ErrNotFound
}

func (c *simulatedCatalog) FindProductBySKU(ctx context.Context, sku string) (int64, error) {
	return lookup(ctx, c.products, sku, c.real.FindProductBySKU)
}

func (c *simulatedCatalog) FindOrderByNumber(ctx context.Context, orderNumber string) (int64, error) {
	return lookup(ctx, c.orders, orderNumber, c.real.FindOrderByNumber)
}

// simulateCreate mirrors "insert on conflict do nothing, then re-read": an
// existing key yields its id, a new key gets the next placeholder id.
func (c *simulatedCatalog) simulateCreate(ctx context.Context, kind EntityKind, key string, find func(context.Context, string) (int64, error), remember func(int64)) (int64, bool, error) {
	if key != "" {
		id, err := find(ctx, key)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, false, err
		}
	}
	id := c.alloc.Next(kind)
	remember(id)
	return id, true, nil
}

func (c *simulatedCatalog) CreateCompany(ctx context.Context, co store.Company) (int64, bool, error) {
	return c.simulateCreate(ctx, EntityCompany, co.Domain, c.FindCompanyByDomain, func(id int64) {
		c.companies[co.Domain] = id
	})
}

func (c *simulatedCatalog) CreatePerson(ctx context.Context, p store.Person) (int64, bool, error) {
	return c.simulateCreate(ctx, EntityPerson, p.Email, c.FindPersonByEmail, func(id int64) {
		if p.Email != "" {
			c.emails[p.Email] = id
		}
		if _, ok := c.phones[p.Phone]; !ok && p.Phone != "" {
			c.phones[p.Phone] = id
		}
		if _, ok := c.names[p.Name]; !ok && p.Name != "" {
			c.names[p.Name] = id
		}
	})
}

func (c *simulatedCatalog) CreateProduct(ctx context.Context, p store.Product) (int64, bool, error) {
	return c.simulateCreate(ctx, EntityProduct, p.SKU, c.FindProductBySKU, func(id int64) {
		c.products[p.SKU] = id
	})
}

func (c *simulatedCatalog) ShippingProduct(ctx context.Context) (int64, bool, error) {
	return c.CreateProduct(ctx, store.Shipping)
}

func (c *simulatedCatalog) CreateOrder(ctx context.Context, unit store.OrderUnit) (store.OrderResult, error) {
	num := unit.Order.OrderNumber
	res := store.OrderResult{OrderNumber: num}

	id, created, err := c.simulateCreate(ctx, EntityOrder, num, c.FindOrderByNumber, func(id int64) {
		c.orders[num] = id
	})
	if err != nil {
		return res, err
	}
	res.OrderID = id
	res.Created = created
	if !created {
		return res, nil
	}
	for range unit.Items {
		res.LineItemIDs = append(res.LineItemIDs, c.alloc.Next(EntityLineItem))
	}
	return res, nil
}
