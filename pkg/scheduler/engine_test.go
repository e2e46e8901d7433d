package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dukex/prodflow/pkg/eventbus"
	"github.com/dukex/prodflow/pkg/events"
	"github.com/dukex/prodflow/pkg/mocks"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/persistence"
	"github.com/dukex/prodflow/pkg/persistence/file"
	"github.com/dukex/prodflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	entry      = "P1 Production Queue"
	layup      = "Layup/Plugging"
	finish     = "Finish"
	paint      = "Paint"
	shippingQC = "Shipping QC"
	shipping   = "Shipping"
)

var now = time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)

func newClock(t *testing.T) *periodclock.Clock {
	t.Helper()

	clock, err := periodclock.New(periodclock.Config{
		Epoch:            periodclock.MustParseDate("2025-07-01"),
		PeriodLengthDays: 14,
	})
	require.NoError(t, err)

	return clock
}

func newEngine(t *testing.T, mutate func(*scheduler.Config)) *scheduler.Engine {
	t.Helper()

	cfg := scheduler.Config{
		Clock:       newClock(t),
		Persistence: file.NewPersistence(t.TempDir()),
		Now:         func() time.Time { return now },
	}

	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := scheduler.New(cfg)
	require.NoError(t, err)

	return engine
}

func data(id string, score float64, due string) models.OrderData {
	d := models.OrderData{
		OrderID:       id,
		Customer:      "Acme",
		Product:       "Stock",
		Quantity:      1,
		PriorityScore: score,
		SpecRef:       "M-700",
	}

	if due != "" {
		date := periodclock.MustParseDate(due)
		d.DueDate = &date
	}

	return d
}

func ingest(t *testing.T, engine *scheduler.Engine, d models.OrderData) *models.ProductionOrder {
	t.Helper()

	order, err := engine.Ingest(t.Context(), d)
	require.NoError(t, err)

	return order
}

func advance(t *testing.T, engine *scheduler.Engine, id, to string) *models.ProductionOrder {
	t.Helper()

	order, err := engine.AdvanceStage(t.Context(), id, to)
	require.NoError(t, err)

	return order
}

func queueIDs(t *testing.T, engine *scheduler.Engine, dept string) []string {
	t.Helper()

	snapshot, err := engine.SnapshotDepartment(dept)
	require.NoError(t, err)

	return snapshot.OrderIDs()
}

func TestNew_RequiresClock(t *testing.T) {
	t.Parallel()

	_, err := scheduler.New(scheduler.Config{})
	assert.Error(t, err)

	_, err = scheduler.New(scheduler.Config{Clock: newClock(t), MaxReworkCycles: -1})
	assert.Error(t, err)
}

func TestEngine_Ingest(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	order := ingest(t, engine, data("AB001", 50, "2025-07-20"))
	assert.Equal(t, entry, order.CurrentDepartment)
	assert.Equal(t, models.OrderStateQueued, order.State)
	assert.Equal(t, 1, order.PeriodIndex)
	assert.Equal(t, "AB", order.PeriodCode)
	assert.Equal(t, models.UrgencyLow, order.Urgency)
	assert.False(t, order.NeedsInformation)
	assert.Equal(t, now, order.EnqueuedAt)

	undated := ingest(t, engine, data("AB002", 10, ""))
	assert.Equal(t, 0, undated.PeriodIndex, "orders without a due date use the current period")

	assert.Equal(t, []string{"AB001", "AB002"}, queueIDs(t, engine, entry))
}

func TestEngine_Ingest_Rejections(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	_, err := engine.Ingest(t.Context(), models.OrderData{OrderID: "AB001"})
	assert.True(t, scheduler.IsValidation(err))

	var verr *scheduler.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Fields)

	_, err = engine.Ingest(t.Context(), data("AB002", math.NaN(), ""))
	assert.True(t, scheduler.IsValidation(err))

	_, err = engine.Ingest(t.Context(), data("AB003", 1, "2025-06-01"))
	assert.True(t, scheduler.IsInvalidDate(err))

	assert.Empty(t, queueIDs(t, engine, entry))
}

func TestEngine_Ingest_UpdatesQueuedOrderInPlace(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	ingest(t, engine, data("AB001", 10, "2025-07-20"))
	ingest(t, engine, data("AB002", 20, "2025-07-20"))
	advance(t, engine, "AB001", "")

	again := data("AB001", 99, "2025-08-20")
	again.Customer = "Acme West"

	updated := ingest(t, engine, again)
	assert.Equal(t, layup, updated.CurrentDepartment, "re-ingest must not move the order")
	assert.Equal(t, "Acme West", updated.Customer)
	assert.Equal(t, 3, updated.PeriodIndex)
	assert.Equal(t, now, updated.EnqueuedAt)

	assert.Equal(t, []string{"AB002"}, queueIDs(t, engine, entry))
	assert.Equal(t, []string{"AB001"}, queueIDs(t, engine, layup))
}

func TestEngine_Ingest_ReplayKeepsIntakePeriod(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		clock = now
	)

	engine := newEngine(t, func(cfg *scheduler.Config) {
		cfg.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()

			return clock
		}
	})

	first := ingest(t, engine, data("AB001", 10, ""))
	assert.Equal(t, 0, first.PeriodIndex)

	mu.Lock()
	clock = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	mu.Unlock()

	replayed := ingest(t, engine, data("AB001", 10, ""))
	assert.Equal(t, 0, replayed.PeriodIndex)
	assert.Equal(t, first.PeriodCode, replayed.PeriodCode)
	assert.Equal(t, now, replayed.CreatedAt)

	dated := ingest(t, engine, data("AB001", 10, "2025-08-20"))
	assert.Equal(t, 3, dated.PeriodIndex)
}

func TestEngine_AdvanceStage_DefaultRoutes(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	ingest(t, engine, data("AB001", 10, ""))
	assert.Equal(t, layup, advance(t, engine, "AB001", "").CurrentDepartment)

	noModel := data("AB002", 10, "")
	noModel.SpecRef = "  "
	order := ingest(t, engine, noModel)
	assert.True(t, order.NeedsInformation)
	assert.Equal(t, shippingQC, advance(t, engine, "AB002", "").CurrentDepartment)

	flattop := data("AB003", 10, "")
	flattop.Flags = []string{"flattop"}
	ingest(t, engine, flattop)
	advance(t, engine, "AB003", "")
	assert.Equal(t, finish, advance(t, engine, "AB003", "").CurrentDepartment)

	history, err := engine.History(t.Context(), "AB003")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TransitionForward, history[0].Kind)
	assert.Equal(t, models.TransitionSkip, history[1].Kind)
}

func TestEngine_AdvanceStage_Rejections(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)
	ingest(t, engine, data("AB001", 10, ""))

	_, err := engine.AdvanceStage(t.Context(), "AB001", paint)
	assert.True(t, scheduler.IsIllegalTransition(err))

	_, err = engine.AdvanceStage(t.Context(), "AB001", "Polishing")
	assert.True(t, scheduler.IsIllegalTransition(err))

	_, err = engine.AdvanceStage(t.Context(), "nope", "")
	assert.True(t, scheduler.IsNotFound(err))

	assert.Equal(t, []string{"AB001"}, queueIDs(t, engine, entry))
}

func TestEngine_Rework(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	noModel := data("AB001", 10, "")
	noModel.SpecRef = ""
	ingest(t, engine, noModel)
	advance(t, engine, "AB001", "")

	_, err := engine.AdvanceStage(t.Context(), "AB001", paint)
	assert.True(t, scheduler.IsIllegalTransition(err), "rework needs the order in progress")

	for cycle := 1; cycle <= scheduler.DefaultMaxReworkCycles; cycle++ {
		_, err := engine.StartWork(t.Context(), "AB001")
		require.NoError(t, err)

		reworked := advance(t, engine, "AB001", paint)
		assert.Equal(t, models.OrderStateReworked, reworked.State)
		assert.Equal(t, cycle, reworked.ReworkCount)

		assert.Equal(t, shippingQC, advance(t, engine, "AB001", "").CurrentDepartment)
	}

	_, err = engine.StartWork(t.Context(), "AB001")
	require.NoError(t, err)

	_, err = engine.AdvanceStage(t.Context(), "AB001", paint)
	assert.True(t, scheduler.IsIllegalTransition(err), "rework cycles are bounded")

	order, err := engine.Order(t.Context(), "AB001")
	require.NoError(t, err)
	assert.Equal(t, shippingQC, order.CurrentDepartment)
	assert.Equal(t, models.OrderStateInProgress, order.State)
}

func TestEngine_StartWork(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)
	ingest(t, engine, data("AB001", 10, ""))

	order, err := engine.StartWork(t.Context(), "AB001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateInProgress, order.State)

	_, err = engine.StartWork(t.Context(), "AB001")
	assert.True(t, scheduler.IsIllegalTransition(err))

	assert.Equal(t, models.OrderStateQueued, advance(t, engine, "AB001", "").State)
}

func TestEngine_CompleteAtTerminalStage(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)

	noModel := data("AB001", 10, "")
	noModel.SpecRef = ""
	ingest(t, engine, noModel)
	advance(t, engine, "AB001", "")
	advance(t, engine, "AB001", "")

	completed := advance(t, engine, "AB001", "")
	assert.Equal(t, models.OrderStateCompleted, completed.State)
	assert.Equal(t, shipping, completed.CurrentDepartment)
	assert.Empty(t, queueIDs(t, engine, shipping))

	archived, err := engine.Order(t.Context(), "AB001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateCompleted, archived.State)

	_, err = engine.AdvanceStage(t.Context(), "AB001", "")
	assert.True(t, scheduler.IsNotFound(err))

	_, err = engine.Ingest(t.Context(), noModel)
	assert.True(t, scheduler.IsValidation(err), "completed orders are not admitted again")
}

func TestEngine_Cancel(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)
	ingest(t, engine, data("AB001", 10, ""))

	removed, err := engine.Cancel(t.Context(), "AB001", "customer request")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, models.OrderStateCancelled, removed.State)

	again, err := engine.Cancel(t.Context(), "AB001", "customer request")
	require.NoError(t, err)
	assert.Nil(t, again)

	readmitted := ingest(t, engine, data("AB001", 10, ""))
	assert.Equal(t, entry, readmitted.CurrentDepartment)
}

func TestEngine_Reprioritize(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, nil)
	ingest(t, engine, data("AB001", 50, ""))
	ingest(t, engine, data("AB002", 10, ""))

	require.Equal(t, []string{"AB001", "AB002"}, queueIDs(t, engine, entry))

	due := periodclock.MustParseDate("2025-07-03")

	order, err := engine.Reprioritize(t.Context(), "AB002", 90, &due)
	require.NoError(t, err)
	assert.Equal(t, 0, order.PeriodIndex)
	assert.Equal(t, models.UrgencyCritical, order.Urgency)
	assert.Equal(t, entry, order.CurrentDepartment)

	assert.Equal(t, []string{"AB002", "AB001"}, queueIDs(t, engine, entry))

	order, err = engine.Reprioritize(t.Context(), "AB002", 5, nil)
	require.NoError(t, err)
	require.NotNil(t, order.DueDate)
	assert.Equal(t, due, *order.DueDate, "a nil due date keeps the current one")

	_, err = engine.Reprioritize(t.Context(), "AB002", math.Inf(1), nil)
	assert.True(t, scheduler.IsValidation(err))

	early := periodclock.MustParseDate("2024-01-01")
	_, err = engine.Reprioritize(t.Context(), "AB002", 5, &early)
	assert.True(t, scheduler.IsInvalidDate(err))

	_, err = engine.Reprioritize(t.Context(), "nope", 5, nil)
	assert.True(t, scheduler.IsNotFound(err))
}

func TestEngine_SnapshotUnknownDepartment(t *testing.T) {
	t.Parallel()

	_, err := newEngine(t, nil).SnapshotDepartment("Polishing")
	assert.True(t, scheduler.IsNotFound(err))
}

func TestEngine_Restore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := file.NewPersistence(dir)

	first := newEngine(t, func(cfg *scheduler.Config) { cfg.Persistence = store })
	ingest(t, first, data("AB001", 10, ""))
	ingest(t, first, data("AB002", 20, ""))
	advance(t, first, "AB002", "")

	second := newEngine(t, func(cfg *scheduler.Config) { cfg.Persistence = file.NewPersistence(dir) })
	require.NoError(t, second.Restore(t.Context()))

	assert.Equal(t, []string{"AB001"}, queueIDs(t, second, entry))
	assert.Equal(t, []string{"AB002"}, queueIDs(t, second, layup))
}

func TestEngine_PersistenceFailureLeavesQueuesUnchanged(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("OrderByID", mock.Anything, mock.Anything).
		Return(nil, persistence.NewOrderError("get_order", "AB001", persistence.ErrOrderNotFound))
	store.On("Apply", mock.Anything, mock.MatchedBy(func(c models.OrderChange) bool {
		return c.Kind == models.ChangeUpsert
	})).Return(nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	engine := newEngine(t, func(cfg *scheduler.Config) { cfg.Persistence = store })
	ingest(t, engine, data("AB001", 10, ""))

	_, err := engine.AdvanceStage(t.Context(), "AB001", "")
	require.Error(t, err)
	assert.True(t, scheduler.IsStoreUnavailable(err))

	assert.Equal(t, []string{"AB001"}, queueIDs(t, engine, entry))
	assert.Empty(t, queueIDs(t, engine, layup))

	_, err = engine.Cancel(t.Context(), "AB001", "")
	assert.True(t, scheduler.IsStoreUnavailable(err))
	assert.Equal(t, []string{"AB001"}, queueIDs(t, engine, entry))
}

func TestEngine_PublishesEvents(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	engine := newEngine(t, func(cfg *scheduler.Config) { cfg.Publisher = bus })

	ingest(t, engine, data("AB001", 10, ""))
	advance(t, engine, "AB001", "")

	ofType := func(eventType events.EventType) any {
		return mock.MatchedBy(func(e eventbus.Event) bool { return e.GetType() == eventType })
	}

	bus.AssertCalled(t, "Publish", mock.Anything, "AB001", ofType(events.OrderIngestedEvent))
	bus.AssertCalled(t, "Publish", mock.Anything, "AB001", ofType(events.StageTransitionedEvent))
	bus.AssertCalled(t, "Publish", mock.Anything, entry, ofType(events.QueueChangedEvent))
	bus.AssertCalled(t, "Publish", mock.Anything, layup, ofType(events.QueueChangedEvent))
}

func TestEngine_PublishFailureDoesNotFailOperation(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	engine := newEngine(t, func(cfg *scheduler.Config) { cfg.Publisher = bus })

	order, err := engine.Ingest(t.Context(), data("AB001", 10, ""))
	require.NoError(t, err)
	assert.Equal(t, entry, order.CurrentDepartment)
}

func TestEngine_ConcurrentAdvancesKeepEveryOrder(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, func(cfg *scheduler.Config) { cfg.Persistence = nil })

	const n = 40

	for i := range n {
		ingest(t, engine, data(fmt.Sprintf("AB%03d", i), float64(i), ""))
	}

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func(id string) {
			defer wg.Done()

			for range 3 {
				_, _ = engine.AdvanceStage(context.Background(), id, "")
			}
		}(fmt.Sprintf("AB%03d", i))
	}

	wg.Wait()

	total := 0
	for _, size := range engine.QueueSizes() {
		total += size
	}

	assert.Equal(t, n, total)
	assert.Len(t, queueIDs(t, engine, "CNC"), n)
}
