package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storecraft/commerce-core/internal/cache"
	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/domain/stock"
)

// --- Stock Repository Mock ---

// MockStockRepository is a mock implementation of stock.Repository. The
// default behavior is an in-memory table honoring the version-CAS
// contract; the Func fields override individual methods.
type MockStockRepository struct {
	mu   sync.Mutex
	rows map[stock.Key]*stock.Row
	txns []*stock.Txn

	GetFunc            func(ctx context.Context, key stock.Key) (*stock.Row, error)
	CreateFunc         func(ctx context.Context, row *stock.Row) error
	IncreaseLockedFunc func(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error)
	ConfirmDeductFunc  func(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error)
	DecreaseLockedFunc func(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error)
	AdjustFunc         func(ctx context.Context, key stock.Key, totalQty, safetyStock, expectedVersion int64) (bool, error)
	AddTxnFunc         func(ctx context.Context, txn *stock.Txn) error
}

func NewMockStockRepository() *MockStockRepository {
	return &MockStockRepository{rows: make(map[stock.Key]*stock.Row)}
}

// Seed inserts a row directly, bypassing the CAS path.
func (m *MockStockRepository) Seed(row *stock.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[row.Key] = &cp
}

// Txns returns the journal entries recorded so far.
func (m *MockStockRepository) Txns() []*stock.Txn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*stock.Txn(nil), m.txns...)
}

func (m *MockStockRepository) Get(ctx context.Context, key stock.Key) (*stock.Row, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, domainErrors.ErrStockNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *MockStockRepository) Create(ctx context.Context, row *stock.Row) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, row)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[row.Key] = &cp
	return nil
}

func (m *MockStockRepository) IncreaseLocked(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	if m.IncreaseLockedFunc != nil {
		return m.IncreaseLockedFunc(ctx, key, qty, expectedVersion)
	}
	return m.cas(key, expectedVersion, func(row *stock.Row) {
		row.LockedQty += qty
	})
}

func (m *MockStockRepository) ConfirmDeduct(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	if m.ConfirmDeductFunc != nil {
		return m.ConfirmDeductFunc(ctx, key, qty, expectedVersion)
	}
	return m.cas(key, expectedVersion, func(row *stock.Row) {
		row.TotalQty -= qty
		row.LockedQty -= qty
	})
}

func (m *MockStockRepository) DecreaseLocked(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	if m.DecreaseLockedFunc != nil {
		return m.DecreaseLockedFunc(ctx, key, qty, expectedVersion)
	}
	return m.cas(key, expectedVersion, func(row *stock.Row) {
		row.LockedQty -= qty
	})
}

func (m *MockStockRepository) Adjust(ctx context.Context, key stock.Key, totalQty, safetyStock, expectedVersion int64) (bool, error) {
	if m.AdjustFunc != nil {
		return m.AdjustFunc(ctx, key, totalQty, safetyStock, expectedVersion)
	}
	return m.cas(key, expectedVersion, func(row *stock.Row) {
		row.TotalQty = totalQty
		row.SafetyStock = safetyStock
	})
}

func (m *MockStockRepository) AddTxn(ctx context.Context, txn *stock.Txn) error {
	if m.AddTxnFunc != nil {
		return m.AddTxnFunc(ctx, txn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns = append(m.txns, txn)
	return nil
}

func (m *MockStockRepository) cas(key stock.Key, expectedVersion int64, mutate func(row *stock.Row)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok || row.Version != expectedVersion {
		return false, nil
	}
	mutate(row)
	row.Version++
	row.UpdatedAt = time.Now()
	return true, nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*outbox.Message

	InsertFunc         func(ctx context.Context, msg *outbox.Message) error
	GetDeliverableFunc func(ctx context.Context, limit int) ([]*outbox.Message, error)
	MarkDeliveredFunc  func(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	MarkFailedFunc     func(ctx context.Context, id uuid.UUID, attempts int, dead bool) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{messages: make(map[uuid.UUID]*outbox.Message)}
}

// Message returns the stored message by ID.
func (m *MockOutboxRepository) Message(id uuid.UUID) *outbox.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id]
}

// All returns every stored message in creation order.
func (m *MockOutboxRepository) All() []*outbox.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(*outbox.Message) bool { return true })
}

func (m *MockOutboxRepository) Insert(ctx context.Context, msg *outbox.Message) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockOutboxRepository) GetDeliverable(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if m.GetDeliverableFunc != nil {
		return m.GetDeliverableFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	deliverable := m.sortedLocked(func(msg *outbox.Message) bool {
		return msg.Status == outbox.StatusPending || msg.Status == outbox.StatusFailed
	})
	if limit > 0 && len(deliverable) > limit {
		deliverable = deliverable[:limit]
	}
	return deliverable, nil
}

func (m *MockOutboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	if m.MarkDeliveredFunc != nil {
		return m.MarkDeliveredFunc(ctx, id, deliveredAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Terminal() {
		return nil
	}
	msg.Status = outbox.StatusDelivered
	msg.DeliveredAt = &deliveredAt
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, dead bool) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, attempts, dead)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Terminal() {
		return nil
	}
	msg.Attempts = attempts
	if dead {
		msg.Status = outbox.StatusDead
	} else {
		msg.Status = outbox.StatusFailed
	}
	return nil
}

func (m *MockOutboxRepository) sortedLocked(include func(*outbox.Message) bool) []*outbox.Message {
	var msgs []*outbox.Message
	for _, msg := range m.messages {
		if include(msg) {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}

// --- Transaction Manager Mock ---

// MockTxManager runs the function directly; mocks don't need real
// transaction scoping.
type MockTxManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Stream Publisher Mock ---

// MockStreamPublisher records published invalidation events.
type MockStreamPublisher struct {
	mu     sync.Mutex
	events []cache.InvalidationEvent

	PublishFunc func(ctx context.Context, evt cache.InvalidationEvent) error
}

func (m *MockStreamPublisher) PublishInvalidation(ctx context.Context, evt cache.InvalidationEvent) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, evt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Published returns the events recorded so far.
func (m *MockStreamPublisher) Published() []cache.InvalidationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cache.InvalidationEvent(nil), m.events...)
}
