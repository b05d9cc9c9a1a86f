package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/JonMunkholm/salesync/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesFixture = "testdata/sales.csv"

func createTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "salesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCoordinator(s store.Store, dryRun bool) *Coordinator {
	return NewCoordinator(s, Options{DryRun: dryRun, FBASource: "Amazon FBA"}, nil, nil)
}

func counts(t *testing.T, s store.Store) store.Counts {
	t.Helper()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func TestIngest_Fixture(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	res, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, "sales.csv", res.FileName)
	assert.Equal(t, store.RunCompleted, res.Status)
	assert.Equal(t, 10, res.Stats.TotalRows)
	assert.Equal(t, 5, res.Stats.ValidRecords)
	assert.Equal(t, 5, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.ParseErrors)
	assert.Equal(t, 4, res.Stats.ValidationErrors)
	assert.Equal(t, 0, res.Stats.ResolutionErrors)
	assert.Equal(t, 5, res.Stats.Committed)
	assert.Equal(t, 1, res.Stats.SyntheticEmails)
	assert.InDelta(t, 50.0, res.Stats.SuccessRate(), 0.001)

	assert.Equal(t, Tally{Created: 5}, res.Stats.Entities[EntityCompany])
	assert.Equal(t, Tally{Created: 5}, res.Stats.Entities[EntityPerson])
	assert.Equal(t, Tally{Found: 1, Created: 4}, res.Stats.Entities[EntityProduct])
	assert.Equal(t, Tally{Created: 5}, res.Stats.Entities[EntityOrder])
	assert.Equal(t, Tally{Created: 5}, res.Stats.Entities[EntityLineItem])

	assert.Equal(t, store.Counts{Companies: 5, People: 5, Products: 4, Orders: 5, LineItems: 5}, counts(t, s))

	rows := make([]int, len(res.Errors))
	for i, e := range res.Errors {
		rows[i] = e.Row
	}
	assert.Equal(t, []int{6, 7, 8, 9, 10}, rows)
	assert.Equal(t, core.KindParse, res.Errors[2].Kind)

	for _, o := range res.Outcomes {
		assert.Equal(t, StateCommitted, o.State, "row %d", o.Row)
	}
}

func TestIngest_FulfilmentRecordGetsSyntheticEmail(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	id, err := s.FindPersonByEmail(ctx, "FBA-user1@FBA-amazon.com")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = s.FindCompanyByDomain(ctx, "fba-amazon.com")
	require.NoError(t, err)
}

func TestIngest_SecondRunCreatesNothing(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)
	before := counts(t, s)

	res, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, before, counts(t, s))
	assert.Equal(t, Tally{Skipped: 5}, res.Stats.Entities[EntityOrder])
	assert.Equal(t, Tally{}, res.Stats.Entities[EntityLineItem])
	assert.Equal(t, Tally{Found: 5}, res.Stats.Entities[EntityPerson])
	assert.Equal(t, Tally{Found: 5}, res.Stats.Entities[EntityProduct])

	for _, d := range res.Decisions.Entries() {
		if d.Entity == EntityPerson {
			assert.Equal(t, BasisEmail, d.Basis, d.Key)
		}
	}
}

func TestIngest_DryRunMatchesLiveRun(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	dry, err := newTestCoordinator(s, true).IngestFile(ctx, salesFixture)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{}, counts(t, s))

	for _, o := range dry.Outcomes {
		assert.Equal(t, StateOrderCreated, o.State)
	}

	live, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, live.Decisions.Signatures(), dry.Decisions.Signatures())
	assert.Equal(t, live.Stats.Entities, dry.Stats.Entities)
}

func TestIngest_DryRunMatchesLiveRun_MixedOrders(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	const fixture = "testdata/sales_mixed.csv"

	dry, err := newTestCoordinator(s, true).IngestFile(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{}, counts(t, s))

	live, err := newTestCoordinator(s, false).IngestFile(ctx, fixture)
	require.NoError(t, err)
	require.Empty(t, live.Errors)

	assert.Equal(t, live.Decisions.Signatures(), dry.Decisions.Signatures())
	assert.Equal(t, live.Stats.Entities, dry.Stats.Entities)

	sigs := live.Decisions.Signatures()
	assert.Contains(t, sigs, "A1000 product create shipping")
	assert.Contains(t, sigs, "A1000 line_item create A1000#2")
	assert.Contains(t, sigs, "A1001 person found other@kim.example phone")
	assert.Contains(t, sigs, "A1002 person found Pat Kim name")
	assert.Contains(t, sigs, "912-0000002 person found FBA-user2@FBA-amazon.com name")
	assert.Contains(t, sigs, "A1000 order skip_existing A1000")

	want := store.Counts{Companies: 2, People: 2, Products: 4, Orders: 5, LineItems: 6}
	assert.Equal(t, want, counts(t, s))

	again, err := newTestCoordinator(s, false).IngestFile(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, want, counts(t, s))
	assert.Equal(t, Tally{Skipped: 6}, again.Stats.Entities[EntityOrder])
}

func TestIngest_DryRunAfterLiveRunFindsEverything(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)
	before := counts(t, s)

	dry, err := newTestCoordinator(s, true).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, before, counts(t, s))
	assert.Equal(t, Tally{Skipped: 5}, dry.Stats.Entities[EntityOrder])
	assert.Zero(t, dry.Stats.Entities[EntityCompany].Created)
}

func TestIngest_RecordsRunHistory(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := newTestCoordinator(s, true).IngestFile(ctx, salesFixture)
	require.NoError(t, err)
	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "dry runs are not recorded")

	res, err := newTestCoordinator(s, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	runs, err = s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, "sales.csv", runs[0].FileName)
	assert.Equal(t, 5, runs[0].OrdersCreated)
	assert.Equal(t, 5, runs[0].LineItemsCreated)
	assert.Equal(t, 5, runs[0].Errors)
	assert.Equal(t, store.RunCompleted, runs[0].Status)
}

func TestIngest_Limit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	c := NewCoordinator(s, Options{Limit: 2, FBASource: "Amazon FBA"}, nil, nil)
	res, err := c.IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Stats.ValidRecords)
	assert.Equal(t, 2, res.Stats.Processed)
	assert.Len(t, res.Outcomes, 5)
	assert.Equal(t, int64(2), counts(t, s).Orders)
}

func TestIngest_MissingFileIsFatal(t *testing.T) {
	s := createTestStore(t)

	res, err := newTestCoordinator(s, false).IngestFile(context.Background(), "testdata/missing.csv")
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, store.RunFailed, res.Status)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestIngest_MissingColumnsIsFatal(t *testing.T) {
	s := createTestStore(t)

	_, err := newTestCoordinator(s, false).IngestFile(context.Background(), "testdata/products.csv")
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, "FILE006", core.MapError(err).Code)
}

func TestIngest_Cancelled(t *testing.T) {
	s := createTestStore(t)
	tracker := NewTracker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCoordinator(s, Options{FBASource: "Amazon FBA"}, nil, tracker)
	res, err := c.IngestFile(ctx, salesFixture)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "RUN001", core.MapError(err).Code)
	assert.Equal(t, store.RunFailed, res.Status)
	assert.Equal(t, 10, res.Stats.TotalRows, "partial summary is still produced")
	assert.Equal(t, PhaseCancelled, tracker.Snapshot().Phase)
	assert.Equal(t, store.Counts{}, counts(t, s))
}

func TestIngest_TracksProgress(t *testing.T) {
	s := createTestStore(t)
	tracker := NewTracker()

	c := NewCoordinator(s, Options{FBASource: "Amazon FBA"}, nil, tracker)
	res, err := c.IngestFile(context.Background(), salesFixture)
	require.NoError(t, err)

	p := tracker.Snapshot()
	assert.Equal(t, res.RunID.String(), p.RunID)
	assert.Equal(t, PhaseComplete, p.Phase)
	assert.Equal(t, 10, p.TotalRows)
	assert.Equal(t, 5, p.TotalOrders)
	assert.Equal(t, 5, p.CurrentOrder)
	assert.Equal(t, 5, p.OrdersCreated)
	assert.Equal(t, 5, p.Errors)
	assert.Equal(t, 100, p.Percent())
	assert.Positive(t, p.BytesRead)
}

// personLookupFailure fails every email lookup.
type personLookupFailure struct {
	store.Store
}

func (personLookupFailure) FindPersonByEmail(context.Context, string) (int64, error) {
	return 0, errors.New("lookup failed")
}

func TestIngest_PersonFailureFailsWholeOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	res, err := newTestCoordinator(personLookupFailure{s}, false).IngestFile(ctx, salesFixture)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Stats.ResolutionErrors)
	assert.Equal(t, 0, res.Stats.Committed)
	for _, e := range res.Errors {
		if e.Kind == core.KindResolution {
			assert.Contains(t, e.Reason, "resolve person")
			assert.Equal(t, "RES002", e.Code())
		}
	}
	for _, o := range res.Outcomes {
		assert.Equal(t, StateFailed, o.State)
	}
	assert.Equal(t, int64(0), counts(t, s).Orders)
}

func TestGroupRecords(t *testing.T) {
	rec := func(date, email, num string) validRecord {
		return validRecord{rec: &core.SalesRecord{Date: date, Email: email, OrderNumber: num}}
	}

	groups := groupRecords([]validRecord{
		rec("1/1/2016", "a@x.example", "A1000"),
		rec("1/1/2016", "b@x.example", "A2000"),
		rec("1/1/2016", "a@x.example; c@x.example", " A1000 "),
		rec("1/2/2016", "a@x.example", "A1000"),
	})

	require.Len(t, groups, 3)
	assert.Equal(t, "A1000", groups[0].orderNumber)
	assert.Len(t, groups[0].records, 2)
	assert.Equal(t, "A2000", groups[1].orderNumber)
	assert.Equal(t, "A1000", groups[2].orderNumber)
	assert.Len(t, groups[2].records, 1)
}
