// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/pfand-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	entries  []generic.Entry
	byID     map[generic.EntryID]bool
	accounts map[generic.AccountID]generic.Account
}

func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[generic.EntryID]bool),
		accounts: make(map[generic.AccountID]generic.Account),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, entry generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entry)
}

func (m *Memory) appendLocked(entry generic.Entry) error {
	if m.byID[entry.ID] {
		return generic.ErrDuplicateEntry
	}
	m.entries = append(m.entries, entry)
	m.byID[entry.ID] = true
	return nil
}

func (m *Memory) LoadAccount(_ context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadAccountLocked(accountID), nil
}

func (m *Memory) loadAccountLocked(accountID generic.AccountID) []generic.Entry {
	var result []generic.Entry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	return result
}

func (m *Memory) LoadAll(_ context.Context) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Entry, len(m.entries))
	copy(result, m.entries)
	return result, nil
}

// =============================================================================
// ACCOUNT REGISTRY
// =============================================================================

func (m *Memory) RegisterAccount(_ context.Context, account generic.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) AccountExists(_ context.Context, accountID generic.AccountID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[accountID]
	return ok, nil
}

// =============================================================================
// ACCOUNT TRANSACTIONS
// =============================================================================

// WithAccountTx executes fn while holding the writer lock.
// Writes made by fn are rolled back if it returns an error.
func (m *Memory) WithAccountTx(ctx context.Context, _ generic.AccountID, fn func(ctx context.Context, tx generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mark := len(m.entries)
	if err := fn(ctx, &txMemoryView{parent: m}); err != nil {
		for _, e := range m.entries[mark:] {
			delete(m.byID, e.ID)
		}
		m.entries = m.entries[:mark]
		return err
	}
	return nil
}

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Append(_ context.Context, entry generic.Entry) error {
	return tv.parent.appendLocked(entry)
}

func (tv *txMemoryView) LoadAccount(_ context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	return tv.parent.loadAccountLocked(accountID), nil
}

func (tv *txMemoryView) LoadAll(_ context.Context) ([]generic.Entry, error) {
	return append([]generic.Entry(nil), tv.parent.entries...), nil
}

var (
	_ generic.TxStore         = (*Memory)(nil)
	_ generic.AccountRegistry = (*Memory)(nil)
)
