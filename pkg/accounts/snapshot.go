package accounts

import (
	"sort"

	"github.com/fortiblox/stratus-harness/internal/types"
)

// Snapshot is an immutable full copy of a store's mapping at a point in time.
//
// Snapshots are not versioned. The transaction executor holds at most one
// in flight, since transactions run sequentially and never nest.
type Snapshot struct {
	accounts map[types.Pubkey]Account
}

// newSnapshot deep-copies src. The caller must hold whatever lock guards src.
func newSnapshot(src map[types.Pubkey]Account) *Snapshot {
	accounts := make(map[types.Pubkey]Account, len(src))
	for addr, acc := range src {
		accounts[addr] = acc.Clone()
	}
	return &Snapshot{accounts: accounts}
}

// NewSnapshot builds a snapshot from a list of keyed accounts. Later entries
// win on duplicate addresses.
func NewSnapshot(entries []KeyedAccount) *Snapshot {
	accounts := make(map[types.Pubkey]Account, len(entries))
	for _, e := range entries {
		accounts[e.Pubkey] = e.Account.Clone()
	}
	return &Snapshot{accounts: accounts}
}

// Get returns a copy of the account captured at addr.
func (s *Snapshot) Get(addr types.Pubkey) (Account, bool) {
	acc, ok := s.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return acc.Clone(), true
}

// Len returns the number of captured accounts.
func (s *Snapshot) Len() int {
	return len(s.accounts)
}

// Addresses returns the captured addresses in ascending byte order.
func (s *Snapshot) Addresses() []types.Pubkey {
	addrs := make([]types.Pubkey, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	SortPubkeys(addrs)
	return addrs
}

// Entries returns copies of all captured accounts sorted by address.
func (s *Snapshot) Entries() []KeyedAccount {
	addrs := s.Addresses()
	out := make([]KeyedAccount, len(addrs))
	for i, addr := range addrs {
		out[i] = KeyedAccount{Pubkey: addr, Account: s.accounts[addr].Clone()}
	}
	return out
}

// Equal reports whether two snapshots hold byte-identical mappings.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.accounts) != len(other.accounts) {
		return false
	}
	for addr, acc := range s.accounts {
		o, ok := other.accounts[addr]
		if !ok || !acc.Equal(o) {
			return false
		}
	}
	return true
}

// copyAccounts returns a fresh deep copy so a restored store never shares
// data buffers with the snapshot, which may be restored again.
func (s *Snapshot) copyAccounts() map[types.Pubkey]Account {
	out := make(map[types.Pubkey]Account, len(s.accounts))
	for addr, acc := range s.accounts {
		out[addr] = acc.Clone()
	}
	return out
}

// SortPubkeys sorts pubkeys in place in ascending byte order.
func SortPubkeys(pubkeys []types.Pubkey) {
	sort.Slice(pubkeys, func(i, j int) bool {
		return types.ComparePubkeys(pubkeys[i], pubkeys[j]) < 0
	})
}
