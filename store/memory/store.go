// Package memory provides an in-memory Store for tests and embedded
// use. All writers are serialized by one mutex; a transaction holds the
// mutex from BeginTx until Commit or Rollback and restores a snapshot
// on rollback, so a rolled-back transaction leaves no partial effect.
package memory

import (
	"context"
	"sync"

	ledger "github.com/beneflow/ledger"
	"github.com/beneflow/ledger/credit"
	"github.com/beneflow/ledger/division"
	"github.com/beneflow/ledger/event"
	"github.com/beneflow/ledger/invoicegen"
	"github.com/beneflow/ledger/store"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

type state struct {
	streams        map[string][]event.Recorded
	creditBalances map[string]*credit.Balance
	divBalances    map[string]*division.Balance
	invoiceEntries map[string]*division.InvoiceEntry
	generationRuns map[string]*invoicegen.GenerationStatus
}

func newState() *state {
	return &state{
		streams:        make(map[string][]event.Recorded),
		creditBalances: make(map[string]*credit.Balance),
		divBalances:    make(map[string]*division.Balance),
		invoiceEntries: make(map[string]*division.InvoiceEntry),
		generationRuns: make(map[string]*invoicegen.GenerationStatus),
	}
}

// clone deep-copies the state for snapshot rollback.
func (st *state) clone() *state {
	c := newState()
	for k, recs := range st.streams {
		c.streams[k] = append([]event.Recorded(nil), recs...)
	}
	for k, b := range st.creditBalances {
		cp := *b
		c.creditBalances[k] = &cp
	}
	for k, b := range st.divBalances {
		cp := *b
		c.divBalances[k] = &cp
	}
	for k, e := range st.invoiceEntries {
		cp := *e
		c.invoiceEntries[k] = &cp
	}
	for k, g := range st.generationRuns {
		cp := *g
		c.generationRuns[k] = &cp
	}
	return c
}

// Store is the in-memory store.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close discards all state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = newState()
	return nil
}

// BeginTx locks the store and returns a transactional view. All
// concurrent units of work are serialized.
func (s *Store) BeginTx(context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &Tx{store: s, snapshot: s.st.clone()}, nil
}

func (s *Store) AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvents(s.st, streamID, expectedVersion, recs)
}

func (s *Store) ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readStream(s.st, streamID), nil
}

func (s *Store) GetCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getCreditBalance(s.st, owner, creditType)
}

func (s *Store) PutCreditBalance(ctx context.Context, b *credit.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putCreditBalance(s.st, b)
}

func (s *Store) GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getDivisionBalance(s.st, divisionID)
}

func (s *Store) PutDivisionBalance(ctx context.Context, b *division.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putDivisionBalance(s.st, b)
}

func (s *Store) GetInvoiceEntry(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getInvoiceEntry(s.st, divisionID, invoiceID)
}

func (s *Store) PutInvoiceEntry(ctx context.Context, e *division.InvoiceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putInvoiceEntry(s.st, e)
}

func (s *Store) GetGenerationBatch(ctx context.Context, batchID string) (*invoicegen.GenerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getGenerationBatch(s.st, batchID)
}

func (s *Store) PutGenerationBatch(ctx context.Context, g *invoicegen.GenerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putGenerationBatch(s.st, g)
}

// Tx is a transactional view of the in-memory store. The store mutex is
// held for the lifetime of the transaction.
type Tx struct {
	store    *Store
	snapshot *state
	done     bool
}

// Commit releases the store lock keeping all writes.
func (t *Tx) Commit(context.Context) error {
	if t.done {
		return ledger.ErrTxDone
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

// Rollback restores the pre-transaction snapshot and releases the lock.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil // rollback after commit/rollback is a no-op, mirroring database/sql
	}
	t.done = true
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	return nil
}

// LockCreditBalance returns the balance row for (owner, creditType).
// The store mutex already serializes the transaction, which subsumes
// the row lock.
func (t *Tx) LockCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return getCreditBalance(t.store.st, owner, creditType)
}

func (t *Tx) AppendEvents(ctx context.Context, streamID string, expectedVersion int64, recs []event.Recorded) error {
	return appendEvents(t.store.st, streamID, expectedVersion, recs)
}

func (t *Tx) ReadStream(ctx context.Context, streamID string) ([]event.Recorded, error) {
	return readStream(t.store.st, streamID), nil
}

func (t *Tx) GetCreditBalance(ctx context.Context, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	return getCreditBalance(t.store.st, owner, creditType)
}

func (t *Tx) PutCreditBalance(ctx context.Context, b *credit.Balance) error {
	return putCreditBalance(t.store.st, b)
}

func (t *Tx) GetDivisionBalance(ctx context.Context, divisionID string) (*division.Balance, error) {
	return getDivisionBalance(t.store.st, divisionID)
}

func (t *Tx) PutDivisionBalance(ctx context.Context, b *division.Balance) error {
	return putDivisionBalance(t.store.st, b)
}

func (t *Tx) GetInvoiceEntry(ctx context.Context, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	return getInvoiceEntry(t.store.st, divisionID, invoiceID)
}

func (t *Tx) PutInvoiceEntry(ctx context.Context, e *division.InvoiceEntry) error {
	return putInvoiceEntry(t.store.st, e)
}

func (t *Tx) GetGenerationBatch(ctx context.Context, batchID string) (*invoicegen.GenerationStatus, error) {
	return getGenerationBatch(t.store.st, batchID)
}

func (t *Tx) PutGenerationBatch(ctx context.Context, g *invoicegen.GenerationStatus) error {
	return putGenerationBatch(t.store.st, g)
}

// ==================== Shared state operations ====================

func appendEvents(st *state, streamID string, expectedVersion int64, recs []event.Recorded) error {
	current := int64(len(st.streams[streamID]))
	if current != expectedVersion {
		return ledger.ErrConcurrencyConflict
	}
	st.streams[streamID] = append(st.streams[streamID], recs...)
	return nil
}

func readStream(st *state, streamID string) []event.Recorded {
	recs := st.streams[streamID]
	out := make([]event.Recorded, len(recs))
	copy(out, recs)
	return out
}

func balanceKey(owner credit.OwnerRef, creditType credit.Type) string {
	return owner.String() + "|" + string(creditType)
}

func getCreditBalance(st *state, owner credit.OwnerRef, creditType credit.Type) (*credit.Balance, error) {
	if b, ok := st.creditBalances[balanceKey(owner, creditType)]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ledger.ErrBalanceNotFound
}

func putCreditBalance(st *state, b *credit.Balance) error {
	cp := *b
	st.creditBalances[balanceKey(b.Owner, b.Type)] = &cp
	return nil
}

func getDivisionBalance(st *state, divisionID string) (*division.Balance, error) {
	if b, ok := st.divBalances[divisionID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ledger.ErrDivisionNotFound
}

func putDivisionBalance(st *state, b *division.Balance) error {
	cp := *b
	st.divBalances[b.DivisionID] = &cp
	return nil
}

func getInvoiceEntry(st *state, divisionID, invoiceID string) (*division.InvoiceEntry, error) {
	if e, ok := st.invoiceEntries[divisionID+"|"+invoiceID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, ledger.ErrInvoiceNotFound
}

func putInvoiceEntry(st *state, e *division.InvoiceEntry) error {
	cp := *e
	st.invoiceEntries[e.DivisionID+"|"+e.InvoiceID] = &cp
	return nil
}

func getGenerationBatch(st *state, batchID string) (*invoicegen.GenerationStatus, error) {
	if g, ok := st.generationRuns[batchID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, ledger.ErrBatchNotFound
}

func putGenerationBatch(st *state, g *invoicegen.GenerationStatus) error {
	cp := *g
	st.generationRuns[g.BatchID] = &cp
	return nil
}
