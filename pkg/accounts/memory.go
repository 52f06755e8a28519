package accounts

import (
	"sync"

	"github.com/fortiblox/stratus-harness/internal/types"
)

// MemoryStore is the default map-backed Store.
//
// The RWMutex makes it safe to share one handle across goroutines. It does
// not make concurrent transactions isolated.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[types.Pubkey]Account),
	}
}

// Get returns a copy of the account at addr.
func (m *MemoryStore) Get(addr types.Pubkey) (Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return acc.Clone(), true
}

// Put stores a copy of account at addr.
func (m *MemoryStore) Put(addr types.Pubkey, account Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[addr] = account.Clone()
}

// Balance returns the lamports held at addr.
func (m *MemoryStore) Balance(addr types.Pubkey) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return 0, false
	}
	return acc.Lamports, true
}

// Len returns the number of accounts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// Range iterates over copies of all accounts. The store is read-locked for
// the duration, so fn must not write to the store.
func (m *MemoryStore) Range(fn func(addr types.Pubkey, account Account) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for addr, acc := range m.accounts {
		if !fn(addr, acc.Clone()) {
			return
		}
	}
}

// Snapshot deep-copies the full mapping.
func (m *MemoryStore) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return newSnapshot(m.accounts)
}

// Restore replaces the live mapping wholesale.
func (m *MemoryStore) Restore(snap *Snapshot) {
	restored := snap.copyAccounts()

	m.mu.Lock()
	m.accounts = restored
	m.mu.Unlock()
}

// Verify that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
