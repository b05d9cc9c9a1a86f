// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options sizes the connection pool. Zero values keep the pgx defaults.
type Options struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init applies the embedded schema.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const (
	selectCompanyByDomain = `SELECT id FROM companies WHERE domain = $1`
	selectPersonByEmail   = `SELECT id FROM people WHERE email = $1 ORDER BY id LIMIT 1`
	selectPersonByPhone   = `SELECT id FROM people WHERE phone = $1 ORDER BY id LIMIT 1`
	selectPersonByName    = `SELECT id FROM people WHERE name = $1 ORDER BY id LIMIT 1`
	selectProductBySKU    = `SELECT id FROM products WHERE sku = $1`
	selectOrderByNumber   = `SELECT id FROM orders WHERE order_number = $1`
)

func (s *Store) FindCompanyByDomain(ctx context.Context, domain string) (int64, error) {
	return findID(ctx, s.pool, selectCompanyByDomain, domain)
}

func (s *Store) FindPersonByEmail(ctx context.Context, email string) (int64, error) {
	return findID(ctx, s.pool, selectPersonByEmail, email)
}

func (s *Store) FindPersonByPhone(ctx context.Context, phone string) (int64, error) {
	return findID(ctx, s.pool, selectPersonByPhone, phone)
}

func (s *Store) FindPersonByName(ctx context.Context, name string) (int64, error) {
	return findID(ctx, s.pool, selectPersonByName, name)
}

func (s *Store) FindProductBySKU(ctx context.Context, sku string) (int64, error) {
	return findID(ctx, s.pool, selectProductBySKU, sku)
}

func (s *Store) FindOrderByNumber(ctx context.Context, orderNumber string) (int64, error) {
	return findID(ctx, s.pool, selectOrderByNumber, orderNumber)
}

func (s *Store) CreateCompany(ctx context.Context, c store.Company) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.pool,
		`INSERT INTO companies (name, domain) VALUES ($1, $2)
		 ON CONFLICT (domain) DO NOTHING RETURNING id`,
		[]any{c.Name, c.Domain},
		selectCompanyByDomain, c.Domain)
	if err != nil {
		return 0, false, fmt.Errorf("resolve company %q: %w", c.Domain, err)
	}
	return id, created, nil
}

func (s *Store) CreatePerson(ctx context.Context, p store.Person) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.pool,
		`INSERT INTO people (name, email, phone, street, city, state, zip, country, company_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (email) DO NOTHING RETURNING id`,
		personArgs(p),
		selectPersonByEmail, p.Email)
	if err != nil {
		return 0, false, fmt.Errorf("resolve person %q: %w", p.Email, err)
	}
	return id, created, nil
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.pool,
		`INSERT INTO products (name, description, sku) VALUES ($1, $2, $3)
		 ON CONFLICT (sku) DO NOTHING RETURNING id`,
		[]any{p.Name, core.ToPgText(p.Description), p.SKU},
		selectProductBySKU, p.SKU)
	if err != nil {
		return 0, false, fmt.Errorf("resolve product %q: %w", p.SKU, err)
	}
	return id, created, nil
}

// ShippingProduct uses a dedicated pooled connection in autocommit mode, so a
// unique violation from a concurrent creator never poisons a caller's
// transaction.
func (s *Store) ShippingProduct(ctx context.Context) (int64, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("resolve product %q: acquire connection: %w", store.Shipping.SKU, err)
	}
	defer conn.Release()

	id, err := findID(ctx, conn, selectProductBySKU, store.Shipping.SKU)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, false, fmt.Errorf("resolve product %q: %w", store.Shipping.SKU, err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO products (name, description, sku) VALUES ($1, $2, $3) RETURNING id`,
		store.Shipping.Name, store.Shipping.Description, store.Shipping.SKU,
	).Scan(&id)
	if isUniqueViolation(err) {
		id, err = findID(ctx, conn, selectProductBySKU, store.Shipping.SKU)
		if err != nil {
			return 0, false, fmt.Errorf("resolve product %q: %w", store.Shipping.SKU, err)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve product %q: %w", store.Shipping.SKU, err)
	}
	return id, true, nil
}

// CreateOrders writes all units in one transaction, isolating each unit
// behind a savepoint.
func (s *Store) CreateOrders(ctx context.Context, units []store.OrderUnit) ([]store.OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := make([]store.OrderResult, len(units))
	for i, unit := range units {
		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		res, err := createOrder(ctx, tx, unit)
		if err != nil {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName)
			results[i] = store.OrderResult{OrderNumber: unit.Order.OrderNumber, Err: err}
			continue
		}

		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName)
		results[i] = res
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

func createOrder(ctx context.Context, tx pgx.Tx, unit store.OrderUnit) (store.OrderResult, error) {
	o := unit.Order
	res := store.OrderResult{OrderNumber: o.OrderNumber}

	err := tx.QueryRow(ctx,
		`INSERT INTO orders (person_id, date, amount, order_number, channel, source)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_number) DO NOTHING RETURNING id`,
		o.PersonID, core.ToPgDate(o.Date), core.ToPgNumeric(o.Amount),
		o.OrderNumber, core.ToPgText(o.Channel), core.ToPgText(o.Source),
	).Scan(&res.OrderID)
	switch {
	case err == nil:
		res.Created = true
	case errors.Is(err, pgx.ErrNoRows):
		// Already imported: keep the existing order and its line items.
		res.OrderID, err = findID(ctx, tx, selectOrderByNumber, o.OrderNumber)
		if err != nil {
			return res, fmt.Errorf("create order %s: re-read: %w", o.OrderNumber, err)
		}
		return res, nil
	default:
		return res, fmt.Errorf("create order %s: %w", o.OrderNumber, err)
	}

	if len(unit.Items) == 0 {
		return res, nil
	}

	batch := &pgx.Batch{}
	for _, item := range unit.Items {
		batch.Queue(
			`INSERT INTO line_items (order_id, product_id, unit_price, quantity, amount)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			res.OrderID, item.ProductID, core.ToPgNumeric(item.UnitPrice),
			item.Quantity, core.ToPgNumeric(item.Amount),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range unit.Items {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			_ = br.Close()
			return res, fmt.Errorf("create order %s: line item: %w", o.OrderNumber, err)
		}
		res.LineItemIDs = append(res.LineItemIDs, id)
	}
	if err := br.Close(); err != nil {
		return res, fmt.Errorf("create order %s: line items: %w", o.OrderNumber, err)
	}
	return res, nil
}

func (s *Store) EnsureUnknownCompany(ctx context.Context) (int64, error) {
	id, _, err := s.CreateCompany(ctx, store.Company{Name: store.UnknownCompanyName, Domain: store.UnknownDomain})
	return id, err
}

func (s *Store) EnsureCompanies(ctx context.Context, companies []store.Company) (store.EnsureResult, error) {
	rows := store.DedupeCompanies(companies)
	src := make([][]any, len(rows))
	for i, c := range rows {
		src[i] = []any{c.Name, c.Domain}
	}
	return s.stageAndMerge(ctx, staging{
		table:   "tmp_companies",
		create:  `CREATE TEMP TABLE tmp_companies (name TEXT, domain TEXT PRIMARY KEY) ON COMMIT DROP`,
		columns: []string{"name", "domain"},
		rows:    src,
		merge: `
			WITH new_rows AS (
				INSERT INTO companies (name, domain)
				SELECT t.name, t.domain FROM tmp_companies t
				LEFT JOIN companies c ON c.domain = t.domain
				WHERE c.id IS NULL
				RETURNING domain, id
			)
			SELECT c.domain, c.id, false FROM companies c
			WHERE c.domain IN (SELECT domain FROM tmp_companies)
			UNION ALL
			SELECT domain, id, true FROM new_rows`,
	})
}

func (s *Store) EnsurePeople(ctx context.Context, people []store.Person) (store.EnsureResult, error) {
	rows := store.DedupePeople(people)
	src := make([][]any, len(rows))
	for i, p := range rows {
		src[i] = personArgs(p)
	}
	return s.stageAndMerge(ctx, staging{
		table: "tmp_people",
		create: `CREATE TEMP TABLE tmp_people (
			name TEXT, email TEXT PRIMARY KEY, phone TEXT, street TEXT, city TEXT,
			state TEXT, zip TEXT, country TEXT, company_id BIGINT
		) ON COMMIT DROP`,
		columns: []string{"name", "email", "phone", "street", "city", "state", "zip", "country", "company_id"},
		rows:    src,
		merge: `
			WITH new_rows AS (
				INSERT INTO people (name, email, phone, street, city, state, zip, country, company_id)
				SELECT t.name, t.email, t.phone, t.street, t.city, t.state, t.zip, t.country, t.company_id
				FROM tmp_people t
				LEFT JOIN people p ON p.email = t.email
				WHERE p.id IS NULL
				RETURNING email, id
			)
			SELECT p.email, p.id, false FROM people p
			WHERE p.email IN (SELECT email FROM tmp_people)
			UNION ALL
			SELECT email, id, true FROM new_rows`,
	})
}

func (s *Store) EnsureProducts(ctx context.Context, products []store.Product) (store.EnsureResult, error) {
	rows := store.DedupeProducts(products)
	src := make([][]any, len(rows))
	for i, p := range rows {
		src[i] = []any{p.Name, core.ToPgText(p.Description), p.SKU}
	}
	return s.stageAndMerge(ctx, staging{
		table:   "tmp_products",
		create:  `CREATE TEMP TABLE tmp_products (name TEXT, description TEXT, sku TEXT PRIMARY KEY) ON COMMIT DROP`,
		columns: []string{"name", "description", "sku"},
		rows:    src,
		merge: `
			WITH new_rows AS (
				INSERT INTO products (name, description, sku)
				SELECT t.name, t.description, t.sku FROM tmp_products t
				LEFT JOIN products p ON p.sku = t.sku
				WHERE p.id IS NULL
				RETURNING sku, id
			)
			SELECT p.sku, p.id, false FROM products p
			WHERE p.sku IN (SELECT sku FROM tmp_products)
			UNION ALL
			SELECT sku, id, true FROM new_rows`,
	})
}

type staging struct {
	table   string
	create  string
	columns []string
	rows    [][]any
	merge   string
}

// stageAndMerge copies rows into a temporary table and runs the merge query,
// which must return (key, id, created) rows.
func (s *Store) stageAndMerge(ctx context.Context, st staging) (store.EnsureResult, error) {
	res := store.EnsureResult{IDs: make(map[string]int64, len(st.rows))}
	if len(st.rows) == 0 {
		return res, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, st.create); err != nil {
		return res, fmt.Errorf("create %s: %w", st.table, err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{st.table}, st.columns, pgx.CopyFromRows(st.rows)); err != nil {
		return res, fmt.Errorf("copy into %s: %w", st.table, err)
	}

	rows, err := tx.Query(ctx, st.merge)
	if err != nil {
		return res, fmt.Errorf("merge %s: %w", st.table, err)
	}
	for rows.Next() {
		var (
			key     string
			id      int64
			created bool
		)
		if err := rows.Scan(&key, &id, &created); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan %s: %w", st.table, err)
		}
		res.IDs[key] = id
		if created {
			res.Created++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("merge %s: %w", st.table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// UpsertProducts inserts products or updates name and description of
// existing SKUs.
func (s *Store) UpsertProducts(ctx context.Context, products []store.Product) (int, error) {
	rows := store.DedupeProducts(products)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(
			`INSERT INTO products (name, description, sku) VALUES ($1, $2, $3)
			 ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`,
			p.Name, core.ToPgText(p.Description), p.SKU,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, p := range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert product %q: %w", p.SKU, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("upsert products: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, file_name, started_at, duration_ms, dry_run, total_rows,
			valid_records, errors, orders_created, orders_skipped, line_items_created, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		core.ToPgUUID(run.ID), run.FileName, run.StartedAt, run.Duration.Milliseconds(), run.DryRun,
		run.TotalRows, run.ValidRecords, run.Errors, run.OrdersCreated, run.OrdersSkipped,
		run.LineItemsCreated, run.Status,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_name, started_at, duration_ms, dry_run, total_rows, valid_records,
			errors, orders_created, orders_skipped, line_items_created, status
		 FROM ingest_runs
		 ORDER BY started_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			r          store.Run
			id         pgtype.UUID
			durationMs int64
		)
		if err := rows.Scan(&id, &r.FileName, &r.StartedAt, &durationMs, &r.DryRun, &r.TotalRows,
			&r.ValidRecords, &r.Errors, &r.OrdersCreated, &r.OrdersSkipped, &r.LineItemsCreated, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ID, _ = uuid.Parse(core.PgUUIDToString(id))
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	var c store.Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM companies),
			(SELECT count(*) FROM people),
			(SELECT count(*) FROM products),
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM line_items)`,
	).Scan(&c.Companies, &c.People, &c.Products, &c.Orders, &c.LineItems)
	if err != nil {
		return c, fmt.Errorf("count entities: %w", err)
	}
	return c, nil
}

func personArgs(p store.Person) []any {
	return []any{
		p.Name, core.ToPgText(p.Email), core.ToPgText(p.Phone),
		core.ToPgText(p.Street), core.ToPgText(p.City), core.ToPgText(p.State),
		core.ToPgText(p.Zip), core.ToPgText(p.Country), p.CompanyID,
	}
}

func findID(ctx context.Context, q DBTX, query string, key string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, query, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// insertOrFind runs an "ON CONFLICT DO NOTHING RETURNING id" insert and, when
// the row already existed, re-reads it by key.
func insertOrFind(ctx context.Context, q DBTX, insert string, args []any, lookup, key string) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx, insert, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}
	id, err = findID(ctx, q, lookup, key)
	return id, false, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
