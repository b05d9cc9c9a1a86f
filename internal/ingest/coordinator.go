// Package ingest reconciles sales records into canonical companies, people,
// products, orders and line items.
//
// A run parses and validates every row, groups valid records into orders
// and resolves each order's entities through a Resolver. Live runs persist
// through the store; dry runs read the same store but simulate every
// creation, so both produce the same decision sequence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/logging"
	"github.com/JonMunkholm/salesync/internal/schema"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordState is the lifecycle position of one valid record.
type RecordState string

const (
	StateParsed          RecordState = "parsed"
	StateValidated       RecordState = "validated"
	StatePersonResolved  RecordState = "person_resolved"
	StateProductResolved RecordState = "product_resolved"
	StateOrderCreated    RecordState = "order_created"
	StateCommitted       RecordState = "committed"
	StateFailed          RecordState = "failed"
)

// RecordOutcome is where one valid record ended up.
type RecordOutcome struct {
	Row         int
	OrderNumber string
	State       RecordState
}

// Options configures a run.
type Options struct {
	DryRun          bool
	Limit           int // process at most Limit valid records; 0 means all
	FBASource       string
	SyntheticDomain string
	Read            core.ReadOptions
}

// Result is everything a run produced. It is returned even when the run
// fails, so a summary can always be printed.
type Result struct {
	RunID     uuid.UUID
	FileName  string
	DryRun    bool
	StartedAt time.Time
	Duration  time.Duration
	Status    string

	Stats     Stats
	Decisions *DecisionLog
	Errors    []*core.RowError
	Outcomes  []RecordOutcome
}

// Coordinator runs ingestions against one store. Per-run state (synthetic
// email counter, id allocator, decision log) is created fresh for every run.
type Coordinator struct {
	store    store.Store
	opts     Options
	recorder Recorder
	tracker  *Tracker
	now      func() time.Time
}

// NewCoordinator creates a coordinator. recorder and tracker may be nil.
func NewCoordinator(s store.Store, opts Options, recorder Recorder, tracker *Tracker) *Coordinator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if opts.Read.Required == nil {
		opts.Read.Required = schema.RequiredNames(schema.SalesFieldSpecs)
	}
	return &Coordinator{
		store:    s,
		opts:     opts,
		recorder: recorder,
		tracker:  tracker,
		now:      time.Now,
	}
}

// IngestFile reads path and ingests it. Errors returned are fatal to the
// run; per-record failures are in Result.Errors.
func (c *Coordinator) IngestFile(ctx context.Context, path string) (*Result, error) {
	res := c.newResult(filepath.Base(path))
	ctx = logging.WithRunID(ctx, res.RunID.String())

	c.tracker.Update(func(p *Progress) { p.Phase = PhaseReading })
	tbl, err := core.ReadCSVFile(path, c.opts.Read)
	if err != nil {
		c.finish(ctx, res, err)
		return res, err
	}
	return c.run(ctx, res, tbl)
}

// Ingest processes an already decoded table.
func (c *Coordinator) Ingest(ctx context.Context, tbl *core.Table) (*Result, error) {
	res := c.newResult(tbl.FileName)
	ctx = logging.WithRunID(ctx, res.RunID.String())
	return c.run(ctx, res, tbl)
}

func (c *Coordinator) newResult(fileName string) *Result {
	res := &Result{
		RunID:     uuid.New(),
		FileName:  fileName,
		DryRun:    c.opts.DryRun,
		StartedAt: c.now(),
		Decisions: &DecisionLog{},
	}
	c.tracker.Update(func(p *Progress) {
		*p = Progress{RunID: res.RunID.String(), FileName: fileName, DryRun: res.DryRun, Phase: PhaseStarting}
	})
	return res
}

// validRecord is a record that passed validation, with the index of its
// outcome entry.
type validRecord struct {
	row     int
	rec     *core.SalesRecord
	outcome int
}

func (c *Coordinator) run(ctx context.Context, res *Result, tbl *core.Table) (*Result, error) {
	logger := logging.FromContext(ctx)
	logger.Info("ingestion started",
		"file", res.FileName,
		"encoding", tbl.Encoding,
		"rows", len(tbl.Rows),
		"dry_run", res.DryRun,
	)

	c.tracker.Update(func(p *Progress) {
		p.Phase = PhaseValidating
		p.TotalRows = len(tbl.Rows)
		p.BytesRead = tbl.Bytes
	})

	valid := c.parseAndValidate(res, tbl)

	if c.opts.Limit > 0 && len(valid) > c.opts.Limit {
		valid = valid[:c.opts.Limit]
	}
	res.Stats.Processed = len(valid)

	groups := groupRecords(valid)
	c.tracker.Update(func(p *Progress) {
		p.Phase = PhaseResolving
		p.TotalOrders = len(groups)
		p.Errors = len(res.Errors)
	})

	var catalog Catalog
	alloc := NewIDAllocator()
	if c.opts.DryRun {
		catalog = NewSimulatedCatalog(c.store, alloc)
	} else {
		catalog = NewLiveCatalog(c.store)
	}
	synthetic := NewSyntheticEmails(c.opts.SyntheticDomain)
	resolver := NewResolver(catalog, synthetic, res.Decisions, c.recorder)

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			err = &core.FatalError{Op: "ingest", Err: err}
			c.finish(ctx, res, err)
			return res, err
		}

		c.processGroup(ctx, resolver, g, res)

		tally := res.Decisions.Tallies()[EntityOrder]
		c.tracker.Update(func(p *Progress) {
			p.CurrentOrder = i + 1
			p.OrdersCreated = tally.Created
			p.OrdersSkipped = tally.Skipped
			p.Errors = len(res.Errors)
		})
	}

	res.Stats.SyntheticEmails = synthetic.Count()
	c.finish(ctx, res, nil)
	return res, nil
}

// parseAndValidate converts every row, recording parse and validation
// failures, and returns the valid records in row order.
func (c *Coordinator) parseAndValidate(res *Result, tbl *core.Table) []validRecord {
	parser := core.NewRowParser(tbl)
	validator := core.NewRecordValidator(c.opts.FBASource)

	var valid []validRecord
	for _, row := range tbl.Rows {
		rec, perr := parser.Parse(row)
		if perr != nil {
			c.addError(res, perr)
			continue
		}
		if !validator.Validate(rec, row.Number) {
			errs := validator.Errors()
			c.addError(res, errs[len(errs)-1])
			continue
		}
		res.Outcomes = append(res.Outcomes, RecordOutcome{
			Row:         row.Number,
			OrderNumber: rec.OrderNumber,
			State:       StateValidated,
		})
		valid = append(valid, validRecord{row: row.Number, rec: rec, outcome: len(res.Outcomes) - 1})
	}

	res.Stats.TotalRows = len(tbl.Rows)
	res.Stats.ValidRecords = len(valid)
	return valid
}

func (c *Coordinator) addError(res *Result, e *core.RowError) {
	res.Errors = append(res.Errors, e)
	c.recorder.RecordRowError(string(e.Kind))
}

// orderGroup is the set of records forming one logical order.
type orderGroup struct {
	orderNumber string
	records     []validRecord
}

type groupKey struct {
	date        string
	email       string
	orderNumber string
}

// groupRecords groups records sharing date, payer email and order number,
// in order of first appearance. The order total is the sum of the line
// amounts, so it is not part of the key.
func groupRecords(records []validRecord) []*orderGroup {
	var groups []*orderGroup
	index := make(map[groupKey]*orderGroup)
	for _, vr := range records {
		key := groupKey{
			date:        vr.rec.Date,
			email:       vr.rec.PrimaryEmail(),
			orderNumber: strings.TrimSpace(vr.rec.OrderNumber),
		}
		g, ok := index[key]
		if !ok {
			g = &orderGroup{orderNumber: key.orderNumber}
			index[key] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, vr)
	}
	return groups
}

// processGroup resolves one order: the person from its first record, a
// product per record, then the order with its line items as one unit.
func (c *Coordinator) processGroup(ctx context.Context, r *Resolver, g *orderGroup, res *Result) {
	r.ForOrder(g.orderNumber)
	first := g.records[0].rec

	personID, err := r.HandlePerson(ctx, first)
	if err != nil {
		for _, vr := range g.records {
			c.fail(ctx, res, vr, err)
		}
		return
	}
	c.setState(res, g.records, StatePersonResolved)

	var (
		items    []store.LineItem
		included []validRecord
		total    = decimal.Zero
	)
	for _, vr := range g.records {
		productID, err := r.FindOrCreateProduct(ctx, vr.rec)
		if err != nil {
			c.fail(ctx, res, vr, err)
			continue
		}
		res.Outcomes[vr.outcome].State = StateProductResolved
		items = append(items, store.LineItem{
			ProductID: productID,
			UnitPrice: vr.rec.UnitPrice,
			Quantity:  vr.rec.Quantity,
			Amount:    vr.rec.LineAmount,
		})
		included = append(included, vr)
		total = total.Add(vr.rec.LineAmount)
	}
	if len(included) == 0 {
		return
	}

	// An unparseable date is stored as NULL rather than failing the order.
	date, _ := core.ParseDate(first.Date)
	channel, _ := first.Channel()
	unit := store.OrderUnit{
		Order: store.Order{
			PersonID:    personID,
			Date:        date,
			Amount:      total,
			OrderNumber: g.orderNumber,
			Channel:     string(channel),
			Source:      first.SourceName,
		},
		Items: items,
	}

	if _, err := r.CreateOrder(ctx, unit); err != nil {
		for _, vr := range included {
			c.fail(ctx, res, vr, err)
		}
		return
	}

	final := StateCommitted
	if res.DryRun {
		final = StateOrderCreated
	}
	c.setState(res, included, final)
}

func (c *Coordinator) setState(res *Result, records []validRecord, state RecordState) {
	for _, vr := range records {
		res.Outcomes[vr.outcome].State = state
	}
}

func (c *Coordinator) fail(ctx context.Context, res *Result, vr validRecord, err error) {
	res.Outcomes[vr.outcome].State = StateFailed
	c.addError(res, &core.RowError{
		Kind:   core.KindResolution,
		Row:    vr.row,
		Reason: err.Error(),
		Record: vr.rec,
		Err:    err,
	})
	logging.FromContext(ctx).Warn("record failed",
		"row", vr.row,
		"order_number", vr.rec.OrderNumber,
		"error", err,
	)
}

// finish computes final statistics, records the run and updates metrics.
func (c *Coordinator) finish(ctx context.Context, res *Result, runErr error) {
	res.Duration = c.now().Sub(res.StartedAt)
	core.SortRowErrors(res.Errors)
	res.Stats.fill(res)

	res.Status = store.RunCompleted
	phase := PhaseComplete
	if runErr != nil {
		res.Status = store.RunFailed
		phase = PhaseFailed
		if errors.Is(runErr, context.Canceled) {
			phase = PhaseCancelled
		}
	}
	c.tracker.Update(func(p *Progress) {
		p.Phase = phase
		p.Errors = res.Stats.Errors
		if runErr != nil {
			p.Error = core.FormatUserError(runErr)
		}
	})
	c.recorder.RecordRun(res.DryRun, res.Status, res.Duration)

	logger := logging.FromContext(ctx)
	if runErr != nil {
		logger.Error("ingestion failed", "file", res.FileName, "error", runErr)
	} else {
		logger.Info("ingestion finished",
			"file", res.FileName,
			"total_rows", res.Stats.TotalRows,
			"valid_records", res.Stats.ValidRecords,
			"errors", res.Stats.Errors,
			"orders_created", res.Stats.Entities[EntityOrder].Created,
			"duration", res.Duration,
		)
	}

	if res.DryRun {
		return
	}
	// A run that never opened its input leaves nothing to audit.
	if runErr != nil && res.Stats.TotalRows == 0 {
		return
	}
	if err := c.store.RecordRun(ctx, res.Run()); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

// Run converts the result into its history row.
func (r *Result) Run() store.Run {
	return store.Run{
		ID:               r.RunID,
		FileName:         r.FileName,
		StartedAt:        r.StartedAt,
		Duration:         r.Duration,
		DryRun:           r.DryRun,
		TotalRows:        r.Stats.TotalRows,
		ValidRecords:     r.Stats.ValidRecords,
		Errors:           r.Stats.Errors,
		OrdersCreated:    r.Stats.Entities[EntityOrder].Created,
		OrdersSkipped:    r.Stats.Entities[EntityOrder].Skipped,
		LineItemsCreated: r.Stats.Entities[EntityLineItem].Created,
		Status:           r.Status,
	}
}

// String summarizes the result on one line for logs.
func (r *Result) String() string {
	return fmt.Sprintf("%s: %d rows, %d valid, %d errors", r.FileName, r.Stats.TotalRows, r.Stats.ValidRecords, r.Stats.Errors)
}
