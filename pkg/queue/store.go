// Package queue keeps one ranked queue per department and moves orders between
// them atomically.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/prodflow/pkg/departments"
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/priority"
)

// locateAttempts bounds how often an id-only operation chases an order that
// keeps changing department under it.
const locateAttempts = 3

var ErrSameDepartment = errors.New("source and destination department are the same")

// Committer makes a change durable. The store calls it while holding the locks
// of every queue the change touches and applies the change in memory only when
// it returns nil.
type Committer interface {
	Commit(ctx context.Context, change models.OrderChange) error
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, change models.OrderChange) error

func (f CommitterFunc) Commit(ctx context.Context, change models.OrderChange) error {
	return f(ctx, change)
}

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, models.OrderChange) error { return nil }

type deptQueue struct {
	mu      sync.RWMutex
	id      departments.StageID
	name    string
	orders  []*models.ProductionOrder
	version uint64
}

func (d *deptQueue) indexOf(orderID string) int {
	return slices.IndexFunc(d.orders, func(o *models.ProductionOrder) bool {
		return o.OrderID == orderID
	})
}

func (d *deptQueue) insert(o *models.ProductionOrder) {
	d.orders = slices.Insert(d.orders, priority.SearchPosition(d.orders, o), o)
}

func (d *deptQueue) removeAt(i int) {
	d.orders = slices.Delete(d.orders, i, i+1)
}

func (d *deptQueue) snapshot(takenAt time.Time) models.QueueSnapshot {
	orders := make([]*models.ProductionOrder, len(d.orders))
	for i, o := range d.orders {
		orders[i] = o.Clone()
	}

	return models.QueueSnapshot{
		Department: d.name,
		Version:    d.version,
		TakenAt:    takenAt,
		Orders:     orders,
	}
}

// Store holds the per-department queues. Department locks are always taken in
// stage ordinal order, and the order index lock is always taken after them. The
// index lock is never held while a change is committed.
type Store struct {
	graph     *departments.Graph
	queues    []*deptQueue
	committer Committer
	logger    *slog.Logger

	indexMu sync.RWMutex
	index   map[string]departments.StageID
	// pending holds new order ids whose first commit is still in flight.
	pending map[string]departments.StageID
}

// New creates an empty store with one queue per stage of graph. A nil committer
// keeps changes in memory only.
func New(graph *departments.Graph, committer Committer, logger *slog.Logger) *Store {
	if committer == nil {
		committer = nopCommitter{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		graph:     graph,
		queues:    make([]*deptQueue, graph.Len()),
		committer: committer,
		logger:    logger.With("module", "queue"),
		index:     make(map[string]departments.StageID),
		pending:   make(map[string]departments.StageID),
	}

	for _, stage := range graph.Stages() {
		s.queues[stage.ID] = &deptQueue{id: stage.ID, name: stage.Name}
	}

	return s
}

func (s *Store) Graph() *departments.Graph {
	return s.graph
}

// Upsert inserts the order into its CurrentDepartment queue, or replaces the
// queued copy in place and re-ranks. It never moves an order between queues.
func (s *Store) Upsert(ctx context.Context, order *models.ProductionOrder) error {
	const op = "upsert"

	id, ok := s.graph.Lookup(order.CurrentDepartment)
	if !ok {
		return newOrderError(op, order.OrderID, order.CurrentDepartment, ErrUnknownDepartment)
	}

	q := s.queues[id]

	q.mu.Lock()
	defer q.mu.Unlock()

	reserved, err := s.reserve(order.OrderID, id)
	if err != nil {
		return newOrderError(op, order.OrderID, order.CurrentDepartment, err)
	}

	stored := order.Clone()

	err = s.commit(ctx, models.OrderChange{Kind: models.ChangeUpsert, Order: stored.Clone()})
	if err != nil {
		if reserved {
			s.release(order.OrderID)
		}

		return unavailable(op, order.OrderID, q.name, err)
	}

	if i := q.indexOf(order.OrderID); i >= 0 {
		q.removeAt(i)
	}

	q.insert(stored)
	q.version++
	s.publish(order.OrderID, id)

	return nil
}

// Move describes a stage change of one order.
type Move struct {
	OrderID string
	From    string
	To      string
	Kind    models.TransitionKind
	At      time.Time

	// Mutate adjusts the moved copy before it is committed. Returning an error
	// aborts the move and leaves both queues untouched.
	Mutate func(order *models.ProductionOrder) error
}

// MoveStage removes the order from From and inserts it into To as one step:
// no reader holding either department lock sees it in both queues or in neither.
func (s *Store) MoveStage(ctx context.Context, m Move) (*models.ProductionOrder, error) {
	const op = "move"

	from, ok := s.graph.Lookup(m.From)
	if !ok {
		return nil, newOrderError(op, m.OrderID, m.From, ErrUnknownDepartment)
	}

	to, ok := s.graph.Lookup(m.To)
	if !ok {
		return nil, newOrderError(op, m.OrderID, m.To, ErrUnknownDepartment)
	}

	if from == to {
		return nil, newOrderError(op, m.OrderID, m.From, ErrSameDepartment)
	}

	unlock := s.lockPair(from, to)
	defer unlock()

	src, dst := s.queues[from], s.queues[to]

	i := src.indexOf(m.OrderID)
	if i < 0 {
		if _, found := s.locate(m.OrderID); found {
			return nil, newOrderError(op, m.OrderID, src.name, ErrNotInDepartment)
		}

		return nil, newOrderError(op, m.OrderID, src.name, ErrNotFound)
	}

	moved := src.orders[i].Clone()
	moved.EnqueuedAt = m.At
	moved.UpdatedAt = m.At

	if m.Mutate != nil {
		if err := m.Mutate(moved); err != nil {
			return nil, err
		}
	}

	moved.OrderID = m.OrderID
	moved.CurrentDepartment = dst.name

	transition := &models.StageTransition{
		OrderID:        m.OrderID,
		FromDepartment: src.name,
		ToDepartment:   dst.name,
		Kind:           m.Kind,
		At:             m.At,
	}

	err := s.commit(ctx, models.OrderChange{Kind: models.ChangeMove, Order: moved.Clone(), Transition: transition})
	if err != nil {
		return nil, unavailable(op, m.OrderID, src.name, err)
	}

	src.removeAt(i)
	src.version++
	dst.insert(moved)
	dst.version++
	s.publish(m.OrderID, to)

	return moved.Clone(), nil
}

// Update applies mutate to the queued order and re-ranks its queue. department
// may be empty to accept the order wherever it is. mutate cannot move the order.
func (s *Store) Update(
	ctx context.Context,
	orderID, department string,
	mutate func(order *models.ProductionOrder) error,
) (*models.ProductionOrder, error) {
	const op = "update"

	var updated *models.ProductionOrder

	err := s.withOrder(op, orderID, department, func(q *deptQueue, i int) error {
		next := q.orders[i].Clone()

		if err := mutate(next); err != nil {
			return err
		}

		next.OrderID = orderID
		next.CurrentDepartment = q.name

		err := s.commit(ctx, models.OrderChange{Kind: models.ChangeUpsert, Order: next.Clone()})
		if err != nil {
			return unavailable(op, orderID, q.name, err)
		}

		q.removeAt(i)
		q.insert(next)
		q.version++

		updated = next.Clone()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Removal describes an order leaving the pipeline.
type Removal struct {
	OrderID string
	// Department, when set, requires the order to be queued there.
	Department string
	State      models.OrderState
	Kind       models.TransitionKind
	Reason     string
	At         time.Time

	// Check may veto the removal after the order is locked.
	Check func(order *models.ProductionOrder) error
}

// Remove takes the order out of its queue and returns its final state. Removing
// an order that no queue holds is a no-op and returns nil, nil.
func (s *Store) Remove(ctx context.Context, r Removal) (*models.ProductionOrder, error) {
	const op = "remove"

	if r.State == "" {
		r.State = models.OrderStateCancelled
	}

	if r.Kind == "" {
		r.Kind = models.TransitionCancel
	}

	var removed *models.ProductionOrder

	err := s.withOrder(op, r.OrderID, r.Department, func(q *deptQueue, i int) error {
		final := q.orders[i].Clone()

		if r.Check != nil {
			if err := r.Check(final); err != nil {
				return err
			}
		}

		final.State = r.State
		final.UpdatedAt = r.At

		change := models.OrderChange{
			Kind:   models.ChangeRemove,
			Order:  final.Clone(),
			Reason: r.Reason,
			Transition: &models.StageTransition{
				OrderID:        r.OrderID,
				FromDepartment: q.name,
				Kind:           r.Kind,
				At:             r.At,
			},
		}

		if err := s.commit(ctx, change); err != nil {
			return unavailable(op, r.OrderID, q.name, err)
		}

		q.removeAt(i)
		q.version++
		s.unpublish(r.OrderID)

		removed = final

		return nil
	})
	if IsNotFound(err) && r.Department == "" {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return removed, nil
}

// Snapshot copies the department's queue under its read lock.
func (s *Store) Snapshot(dept string) (models.QueueSnapshot, error) {
	id, ok := s.graph.Lookup(dept)
	if !ok {
		return models.QueueSnapshot{}, newOrderError("snapshot", "", dept, ErrUnknownDepartment)
	}

	q := s.queues[id]

	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.snapshot(time.Now()), nil
}

// SnapshotAll copies every queue at one consistent point, in stage order.
func (s *Store) SnapshotAll() []models.QueueSnapshot {
	for _, q := range s.queues {
		q.mu.RLock()
	}

	takenAt := time.Now()
	snapshots := make([]models.QueueSnapshot, len(s.queues))

	for i, q := range s.queues {
		snapshots[i] = q.snapshot(takenAt)
	}

	for i := len(s.queues) - 1; i >= 0; i-- {
		s.queues[i].mu.RUnlock()
	}

	return snapshots
}

// Sizes reports the number of queued orders per department.
func (s *Store) Sizes() map[string]int {
	sizes := make(map[string]int, len(s.queues))

	for _, q := range s.queues {
		q.mu.RLock()
		sizes[q.name] = len(q.orders)
		q.mu.RUnlock()
	}

	return sizes
}

// Lookup returns a copy of the queued order.
func (s *Store) Lookup(orderID string) (*models.ProductionOrder, bool) {
	for range locateAttempts {
		id, found := s.locate(orderID)
		if !found {
			return nil, false
		}

		q := s.queues[id]

		q.mu.RLock()
		i := q.indexOf(orderID)

		var order *models.ProductionOrder
		if i >= 0 {
			order = q.orders[i].Clone()
		}
		q.mu.RUnlock()

		if order != nil {
			return order, true
		}
	}

	return nil, false
}

// OrderIDs lists every queued order id in ascending order.
func (s *Store) OrderIDs() []string {
	s.indexMu.RLock()
	ids := make([]string, 0, len(s.index))

	for id := range s.index {
		ids = append(ids, id)
	}
	s.indexMu.RUnlock()

	slices.Sort(ids)

	return ids
}

// Len returns the total number of queued orders.
func (s *Store) Len() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	return len(s.index)
}

// Rerank re-sorts one department queue and reports whether anything moved.
func (s *Store) Rerank(dept string) (bool, error) {
	id, ok := s.graph.Lookup(dept)
	if !ok {
		return false, newOrderError("rerank", "", dept, ErrUnknownDepartment)
	}

	q := s.queues[id]

	q.mu.Lock()
	defer q.mu.Unlock()

	if priority.IsSorted(q.orders) {
		return false, nil
	}

	priority.Sort(q.orders)
	q.version++

	return true, nil
}

// Restore loads orders that are already durable, without committing them again.
// It is meant for start-up, before the store is shared.
func (s *Store) Restore(orders []*models.ProductionOrder) error {
	const op = "restore"

	for _, order := range orders {
		id, ok := s.graph.Lookup(order.CurrentDepartment)
		if !ok {
			return newOrderError(op, order.OrderID, order.CurrentDepartment, ErrUnknownDepartment)
		}

		q := s.queues[id]

		q.mu.Lock()
		s.indexMu.Lock()

		_, dup := s.index[order.OrderID]
		if !dup {
			q.insert(order.Clone())
			q.version++
			s.index[order.OrderID] = id
		}

		s.indexMu.Unlock()
		q.mu.Unlock()

		if dup {
			return newOrderError(op, order.OrderID, order.CurrentDepartment, ErrDuplicate)
		}
	}

	return nil
}

func (s *Store) commit(ctx context.Context, change models.OrderChange) error {
	if err := s.committer.Commit(ctx, change); err != nil {
		s.logger.ErrorContext(ctx, "failed to commit queue change",
			"kind", change.Kind,
			"order_id", change.Order.OrderID,
			"department", change.Order.CurrentDepartment,
			"error", err)

		return err
	}

	return nil
}

// reserve checks that orderID may be upserted into queue id. A new id is held
// in pending until publish or release, so an upsert of the same id into
// another queue fails while the first commit is in flight.
func (s *Store) reserve(orderID string, id departments.StageID) (bool, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if current, found := s.index[orderID]; found {
		if current != id {
			return false, ErrNotInDepartment
		}

		return false, nil
	}

	// The holder of a reservation keeps its queue locked, so it is another queue.
	if _, busy := s.pending[orderID]; busy {
		return false, ErrNotInDepartment
	}

	s.pending[orderID] = id

	return true, nil
}

func (s *Store) release(orderID string) {
	s.indexMu.Lock()
	delete(s.pending, orderID)
	s.indexMu.Unlock()
}

func (s *Store) publish(orderID string, id departments.StageID) {
	s.indexMu.Lock()
	delete(s.pending, orderID)
	s.index[orderID] = id
	s.indexMu.Unlock()
}

func (s *Store) unpublish(orderID string) {
	s.indexMu.Lock()
	delete(s.index, orderID)
	s.indexMu.Unlock()
}

func (s *Store) locate(orderID string) (departments.StageID, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	id, found := s.index[orderID]

	return id, found
}

// withOrder locks the queue holding orderID and runs fn with the order's
// position. When department is empty the order is located through
// the index first, retrying if it moves before its queue is locked.
func (s *Store) withOrder(op, orderID, department string, fn func(q *deptQueue, i int) error) error {
	want := departments.NoStage

	if department != "" {
		id, ok := s.graph.Lookup(department)
		if !ok {
			return newOrderError(op, orderID, department, ErrUnknownDepartment)
		}

		want = id
	}

	for range locateAttempts {
		id := want

		if id == departments.NoStage {
			var found bool

			id, found = s.locate(orderID)
			if !found {
				return newOrderError(op, orderID, "", ErrNotFound)
			}
		}

		q := s.queues[id]

		q.mu.Lock()

		var err error

		i := q.indexOf(orderID)
		if i >= 0 {
			err = fn(q, i)
		}

		q.mu.Unlock()

		if i >= 0 {
			return err
		}

		_, queued := s.locate(orderID)

		switch {
		case !queued:
			return newOrderError(op, orderID, department, ErrNotFound)
		case want != departments.NoStage:
			return newOrderError(op, orderID, department, ErrNotInDepartment)
		}
	}

	return unavailable(op, orderID, department, errors.New("order kept changing department"))
}

// lockPair write-locks two distinct queues in ordinal order.
func (s *Store) lockPair(a, b departments.StageID) func() {
	first, second := s.queues[a], s.queues[b]
	if b < a {
		first, second = second, first
	}

	first.mu.Lock()
	second.mu.Lock()

	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
