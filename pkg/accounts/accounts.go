// Package accounts implements the mutable account store the harness executes
// instructions against.
//
// A store maps an address to exactly one Account record. Absence of an
// address means the account does not exist, which is distinct from an
// account that exists with zero lamports; unlike a validator's AccountsDB,
// the store never garbage-collects zero accounts.
//
// Accounts are value types. Every read, write, snapshot and restore copies
// the full record, including the data payload, so callers can never mutate
// store contents through a returned Account.
//
// Stores support whole-store Snapshot/Restore. That pair is the only
// atomicity primitive the transaction executor has: the execution engine
// mutates the store in place, one instruction at a time.
package accounts

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/fortiblox/stratus-harness/internal/types"
)

var (
	// ErrAccountNotFound is returned by lookups that require an existing account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidData is returned when serialized account data is malformed.
	ErrInvalidData = errors.New("invalid account data")
)

// MaxAccountDataSize is the largest data payload an account may carry.
const MaxAccountDataSize = 10 * 1024 * 1024

// serializedHeaderSize is lamports (8) + data_len (8) + owner (32) +
// executable (1) + rent_epoch (8).
const serializedHeaderSize = 57

// Account represents a single account in the state.
type Account struct {
	// Lamports is the account balance in lamports (1 SOL = 1e9 lamports).
	Lamports uint64

	// Data is the program-defined state. Opaque to the store.
	Data []byte

	// Owner is the program that may modify this account's data and debit
	// its lamports.
	Owner types.Pubkey

	// Executable marks program accounts.
	Executable bool

	// RentEpoch is carried unchanged from the engine's account model.
	RentEpoch uint64
}

// KeyedAccount pairs an address with its account.
type KeyedAccount struct {
	Pubkey  types.Pubkey
	Account Account
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	out := a
	if a.Data != nil {
		out.Data = make([]byte, len(a.Data))
		copy(out.Data, a.Data)
	}
	return out
}

// Equal reports whether two accounts are byte-identical. A nil and an empty
// data payload compare equal.
func (a Account) Equal(b Account) bool {
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		a.RentEpoch == b.RentEpoch &&
		bytes.Equal(a.Data, b.Data)
}

// IsZero returns true if the account has no lamports and no data.
func (a Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Size returns the total serialized size of the account.
func (a Account) Size() int {
	return serializedHeaderSize + len(a.Data)
}

// Serialize encodes the account to bytes.
// Format: lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
func (a Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], a.Lamports)
	offset += 8

	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(a.Data)))
	offset += 8

	copy(buf[offset:], a.Data)
	offset += len(a.Data)

	copy(buf[offset:], a.Owner[:])
	offset += 32

	if a.Executable {
		buf[offset] = 1
	}
	offset++

	binary.LittleEndian.PutUint64(buf[offset:], a.RentEpoch)
	return buf
}

// DeserializeAccount decodes an account from bytes produced by Serialize.
func DeserializeAccount(data []byte) (Account, error) {
	if len(data) < serializedHeaderSize {
		return Account{}, ErrInvalidData
	}

	offset := 0
	lamports := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	dataLen := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	if dataLen > MaxAccountDataSize {
		return Account{}, ErrInvalidData
	}
	if uint64(len(data)-offset) < dataLen+41 {
		return Account{}, ErrInvalidData
	}

	accountData := make([]byte, dataLen)
	copy(accountData, data[offset:offset+int(dataLen)])
	offset += int(dataLen)

	var owner types.Pubkey
	copy(owner[:], data[offset:offset+32])
	offset += 32

	executable := data[offset] != 0
	offset++

	return Account{
		Lamports:   lamports,
		Data:       accountData,
		Owner:      owner,
		Executable: executable,
		RentEpoch:  binary.LittleEndian.Uint64(data[offset:]),
	}, nil
}

// Store is the account store the execution engine reads and writes.
//
// Store operations never fail: absence of data is a normal, representable
// state. Implementations must copy accounts on the way in and on the way out.
// A Store may be shared between goroutines, but concurrent transactions
// against the same store are not isolated from each other; callers that
// need that must serialize transaction submissions themselves.
type Store interface {
	// Get returns a copy of the account at addr, or false if none exists.
	Get(addr types.Pubkey) (Account, bool)

	// Put inserts or overwrites the account at addr.
	Put(addr types.Pubkey, account Account)

	// Balance returns the lamports held at addr, or false if no account exists.
	Balance(addr types.Pubkey) (uint64, bool)

	// Len returns the number of accounts.
	Len() int

	// Range calls fn for every account in unspecified order until fn
	// returns false.
	Range(fn func(addr types.Pubkey, account Account) bool)

	// Snapshot returns an immutable deep copy of the full mapping.
	Snapshot() *Snapshot

	// Restore replaces the live mapping with the snapshot's contents.
	// Accounts created after the snapshot was taken are removed.
	Restore(snap *Snapshot)
}
