// Package sqlite implements store.Store on an embedded SQLite database.
// It backs local runs and the engine tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

const (
	dateLayout = "2006-01-02"
	// timeLayout is fixed width so text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; temp staging tables are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Init applies the embedded schema.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	selectCompanyByDomain = `SELECT id FROM companies WHERE domain = ?`
	selectPersonByEmail   = `SELECT id FROM people WHERE email = ? ORDER BY id LIMIT 1`
	selectPersonByPhone   = `SELECT id FROM people WHERE phone = ? ORDER BY id LIMIT 1`
	selectPersonByName    = `SELECT id FROM people WHERE name = ? ORDER BY id LIMIT 1`
	selectProductBySKU    = `SELECT id FROM products WHERE sku = ?`
	selectOrderByNumber   = `SELECT id FROM orders WHERE order_number = ?`
)

func (s *Store) FindCompanyByDomain(ctx context.Context, domain string) (int64, error) {
	return findID(ctx, s.db, selectCompanyByDomain, domain)
}

func (s *Store) FindPersonByEmail(ctx context.Context, email string) (int64, error) {
	return findID(ctx, s.db, selectPersonByEmail, email)
}

func (s *Store) FindPersonByPhone(ctx context.Context, phone string) (int64, error) {
	return findID(ctx, s.db, selectPersonByPhone, phone)
}

func (s *Store) FindPersonByName(ctx context.Context, name string) (int64, error) {
	return findID(ctx, s.db, selectPersonByName, name)
}

func (s *Store) FindProductBySKU(ctx context.Context, sku string) (int64, error) {
	return findID(ctx, s.db, selectProductBySKU, sku)
}

func (s *Store) FindOrderByNumber(ctx context.Context, orderNumber string) (int64, error) {
	return findID(ctx, s.db, selectOrderByNumber, orderNumber)
}

func (s *Store) CreateCompany(ctx context.Context, c store.Company) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.db,
		`INSERT INTO companies (name, domain) VALUES (?, ?)
		 ON CONFLICT (domain) DO NOTHING RETURNING id`,
		[]any{c.Name, c.Domain},
		selectCompanyByDomain, c.Domain)
	if err != nil {
		return 0, false, fmt.Errorf("resolve company %q: %w", c.Domain, err)
	}
	return id, created, nil
}

func (s *Store) CreatePerson(ctx context.Context, p store.Person) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.db,
		`INSERT INTO people (name, email, phone, street, city, state, zip, country, company_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING RETURNING id`,
		personArgs(p),
		selectPersonByEmail, p.Email)
	if err != nil {
		return 0, false, fmt.Errorf("resolve person %q: %w", p.Email, err)
	}
	return id, created, nil
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) (int64, bool, error) {
	id, created, err := insertOrFind(ctx, s.db,
		`INSERT INTO products (name, description, sku) VALUES (?, ?, ?)
		 ON CONFLICT (sku) DO NOTHING RETURNING id`,
		[]any{p.Name, nullString(p.Description), p.SKU},
		selectProductBySKU, p.SKU)
	if err != nil {
		return 0, false, fmt.Errorf("resolve product %q: %w", p.SKU, err)
	}
	return id, created, nil
}

// ShippingProduct runs on a dedicated connection in autocommit mode.
func (s *Store) ShippingProduct(ctx context.Context) (int64, bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("resolve product %q: acquire connection: %w", store.Shipping.SKU, err)
	}
	defer conn.Close()

	id, err := findID(ctx, conn, selectProductBySKU, store.Shipping.SKU)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, false, fmt.Errorf("resolve product %q: %w", store.Shipping.SKU, err)
	}

	err = conn.QueryRowContext(ctx,
		`INSERT INTO products (name, description, sku) VALUES (?, ?, ?) RETURNING id`,
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

func (s *Store) CreateOrders(ctx context.Context, units []store.OrderUnit) ([]store.OrderResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	results := make([]store.OrderResult, len(units))
	for i, unit := range units {
		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		res, err := createOrder(ctx, tx, unit)
		if err != nil {
			_, _ = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName)
			_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName)
			results[i] = store.OrderResult{OrderNumber: unit.Order.OrderNumber, Err: err}
			continue
		}

		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName)
		results[i] = res
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

func createOrder(ctx context.Context, tx *sql.Tx, unit store.OrderUnit) (store.OrderResult, error) {
	o := unit.Order
	res := store.OrderResult{OrderNumber: o.OrderNumber}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (person_id, date, amount, order_number, channel, source)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_number) DO NOTHING RETURNING id`,
		o.PersonID, nullDate(o.Date), o.Amount.String(),
		o.OrderNumber, nullString(o.Channel), nullString(o.Source),
	).Scan(&res.OrderID)
	switch {
	case err == nil:
		res.Created = true
	case errors.Is(err, sql.ErrNoRows):
		res.OrderID, err = findID(ctx, tx, selectOrderByNumber, o.OrderNumber)
		if err != nil {
			return res, fmt.Errorf("create order %s: re-read: %w", o.OrderNumber, err)
		}
		return res, nil
	default:
		return res, fmt.Errorf("create order %s: %w", o.OrderNumber, err)
	}

	for _, item := range unit.Items {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO line_items (order_id, product_id, unit_price, quantity, amount)
			 VALUES (?, ?, ?, ?, ?) RETURNING id`,
			res.OrderID, item.ProductID, item.UnitPrice.String(), item.Quantity, item.Amount.String(),
		).Scan(&id)
		if err != nil {
			return res, fmt.Errorf("create order %s: line item: %w", o.OrderNumber, err)
		}
		res.LineItemIDs = append(res.LineItemIDs, id)
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
		table:  "tmp_companies",
		create: `CREATE TEMP TABLE tmp_companies (name TEXT, domain TEXT PRIMARY KEY)`,
		insert: `INSERT INTO tmp_companies (name, domain) VALUES (?, ?)`,
		existing: `SELECT c.domain, c.id FROM companies c
			WHERE c.domain IN (SELECT domain FROM tmp_companies)`,
		merge: `INSERT INTO companies (name, domain)
			SELECT t.name, t.domain FROM tmp_companies t
			LEFT JOIN companies c ON c.domain = t.domain
			WHERE c.id IS NULL
			RETURNING domain, id`,
		rows: src,
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
			state TEXT, zip TEXT, country TEXT, company_id INTEGER)`,
		insert: `INSERT INTO tmp_people (name, email, phone, street, city, state, zip, country, company_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		existing: `SELECT p.email, p.id FROM people p
			WHERE p.email IN (SELECT email FROM tmp_people)`,
		merge: `INSERT INTO people (name, email, phone, street, city, state, zip, country, company_id)
			SELECT t.name, t.email, t.phone, t.street, t.city, t.state, t.zip, t.country, t.company_id
			FROM tmp_people t
			LEFT JOIN people p ON p.email = t.email
			WHERE p.id IS NULL
			RETURNING email, id`,
		rows: src,
	})
}

func (s *Store) EnsureProducts(ctx context.Context, products []store.Product) (store.EnsureResult, error) {
	rows := store.DedupeProducts(products)
	src := make([][]any, len(rows))
	for i, p := range rows {
		src[i] = []any{p.Name, nullString(p.Description), p.SKU}
	}
	return s.stageAndMerge(ctx, staging{
		table:  "tmp_products",
		create: `CREATE TEMP TABLE tmp_products (name TEXT, description TEXT, sku TEXT PRIMARY KEY)`,
		insert: `INSERT INTO tmp_products (name, description, sku) VALUES (?, ?, ?)`,
		existing: `SELECT p.sku, p.id FROM products p
			WHERE p.sku IN (SELECT sku FROM tmp_products)`,
		merge: `INSERT INTO products (name, description, sku)
			SELECT t.name, t.description, t.sku FROM tmp_products t
			LEFT JOIN products p ON p.sku = t.sku
			WHERE p.id IS NULL
			RETURNING sku, id`,
		rows: src,
	})
}

type staging struct {
	table    string
	create   string
	insert   string
	existing string
	merge    string
	rows     [][]any
}

// stageAndMerge fills a temporary table, reads the keys that already exist
// and inserts the rest. SQLite has no data-modifying CTEs, so the union of
// old and new ids is assembled from two statements in one transaction.
func (s *Store) stageAndMerge(ctx context.Context, st staging) (store.EnsureResult, error) {
	res := store.EnsureResult{IDs: make(map[string]int64, len(st.rows))}
	if len(st.rows) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS temp."+st.table); err != nil {
		return res, fmt.Errorf("drop %s: %w", st.table, err)
	}
	if _, err := tx.ExecContext(ctx, st.create); err != nil {
		return res, fmt.Errorf("create %s: %w", st.table, err)
	}

	stmt, err := tx.PrepareContext(ctx, st.insert)
	if err != nil {
		return res, fmt.Errorf("prepare %s: %w", st.table, err)
	}
	for _, row := range st.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return res, fmt.Errorf("stage into %s: %w", st.table, err)
		}
	}
	stmt.Close()

	if err := collectIDs(ctx, tx, st.existing, res.IDs, nil); err != nil {
		return res, fmt.Errorf("read existing %s: %w", st.table, err)
	}
	if err := collectIDs(ctx, tx, st.merge, res.IDs, &res.Created); err != nil {
		return res, fmt.Errorf("merge %s: %w", st.table, err)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE temp."+st.table); err != nil {
		return res, fmt.Errorf("drop %s: %w", st.table, err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func collectIDs(ctx context.Context, q queryer, query string, ids map[string]int64, created *int) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			id  int64
		)
		if err := rows.Scan(&key, &id); err != nil {
			return err
		}
		ids[key] = id
		if created != nil {
			*created++
		}
	}
	return rows.Err()
}

func (s *Store) UpsertProducts(ctx context.Context, products []store.Product) (int, error) {
	rows := store.DedupeProducts(products)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (name, description, sku) VALUES (?, ?, ?)
			 ON CONFLICT (sku) DO UPDATE SET name = excluded.name, description = excluded.description`,
			p.Name, nullString(p.Description), p.SKU,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert product %q: %w", p.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, file_name, started_at, duration_ms, dry_run, total_rows,
			valid_records, errors, orders_created, orders_skipped, line_items_created, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.FileName, run.StartedAt.UTC().Format(timeLayout),
		run.Duration.Milliseconds(), run.DryRun, run.TotalRows, run.ValidRecords, run.Errors,
		run.OrdersCreated, run.OrdersSkipped, run.LineItemsCreated, run.Status,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, started_at, duration_ms, dry_run, total_rows, valid_records,
			errors, orders_created, orders_skipped, line_items_created, status
		 FROM ingest_runs
		 ORDER BY started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			r          store.Run
			id         string
			startedAt  string
			durationMs int64
		)
		if err := rows.Scan(&id, &r.FileName, &startedAt, &durationMs, &r.DryRun, &r.TotalRows,
			&r.ValidRecords, &r.Errors, &r.OrdersCreated, &r.OrdersSkipped, &r.LineItemsCreated, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
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
	err := s.db.QueryRowContext(ctx, `
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

// OrderAmount returns the stored total of an order. Used by tests and
// diagnostics to check money round-trips exactly.
func (s *Store) OrderAmount(ctx context.Context, orderNumber string) (decimal.Decimal, error) {
	var amount string
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM orders WHERE order_number = ?`, orderNumber).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, store.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func personArgs(p store.Person) []any {
	return []any{
		p.Name, nullString(p.Email), nullString(p.Phone),
		nullString(p.Street), nullString(p.City), nullString(p.State),
		nullString(p.Zip), nullString(p.Country), p.CompanyID,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func findID(ctx context.Context, q queryer, query string, key string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, query, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertOrFind(ctx context.Context, q queryer, insert string, args []any, lookup, key string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, insert, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	id, err = findID(ctx, q, lookup, key)
	return id, false, err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
