// Package message compiles instructions into a version 0 transaction message
// and estimates the wire size of the resulting transaction.
//
// Only the layout matters here; messages are never signed or sent.
package message

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// PacketDataSize is the largest serialized transaction a packet carries.
const PacketDataSize = 1232

// versionPrefix marks a versioned message; the low bits hold the version.
const versionPrefix = 0x80

var (
	// ErrTooManyAccounts is returned when a message needs more than 256
	// account indexes.
	ErrTooManyAccounts = errors.New("message references too many accounts")

	// ErrMissingPayer is returned when no payer is given.
	ErrMissingPayer = errors.New("message payer is required")
)

// LookupTable is an address lookup table account's contents.
type LookupTable struct {
	Key       types.Pubkey
	Addresses []types.Pubkey
}

// Header describes the signer and writable layout of the static keys.
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references its program and accounts by index.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// AddressTableLookup loads accounts from one lookup table.
type AddressTableLookup struct {
	AccountKey      types.Pubkey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// MessageV0 is a compiled version 0 message.
type MessageV0 struct {
	Header              Header
	StaticAccountKeys   []types.Pubkey
	RecentBlockhash     types.Hash
	Instructions        []CompiledInstruction
	AddressTableLookups []AddressTableLookup
}

type keyMeta struct {
	signer   bool
	writable bool
	invoked  bool
}

// CompileV0 compiles ixs with payer as the fee payer. Non-signer accounts
// found in tables are loaded through lookups instead of static keys;
// invoked programs always stay static.
func CompileV0(payer types.Pubkey, ixs []svm.Instruction, tables []LookupTable, blockhash types.Hash) (*MessageV0, error) {
	if payer.IsZero() {
		return nil, ErrMissingPayer
	}

	metas := map[types.Pubkey]*keyMeta{payer: {signer: true, writable: true}}
	for _, ix := range ixs {
		m := metaFor(metas, ix.ProgramID)
		m.invoked = true
		for _, acc := range ix.Accounts {
			m := metaFor(metas, acc.Pubkey)
			m.signer = m.signer || acc.IsSigner
			m.writable = m.writable || acc.IsWritable
		}
	}

	var lookups []AddressTableLookup
	var loadedWritable, loadedReadonly []types.Pubkey
	for _, table := range tables {
		lookup := AddressTableLookup{AccountKey: table.Key}
		w, wIdx := extract(metas, table, true)
		r, rIdx := extract(metas, table, false)
		if len(wIdx) == 0 && len(rIdx) == 0 {
			continue
		}
		lookup.WritableIndexes, lookup.ReadonlyIndexes = wIdx, rIdx
		lookups = append(lookups, lookup)
		loadedWritable = append(loadedWritable, w...)
		loadedReadonly = append(loadedReadonly, r...)
	}

	var writableSigners, readonlySigners, writable, readonly []types.Pubkey
	for _, key := range sortedKeys(metas) {
		if key == payer {
			continue
		}
		m := metas[key]
		switch {
		case m.signer && m.writable:
			writableSigners = append(writableSigners, key)
		case m.signer:
			readonlySigners = append(readonlySigners, key)
		case m.writable:
			writable = append(writable, key)
		default:
			readonly = append(readonly, key)
		}
	}

	static := make([]types.Pubkey, 0, len(metas))
	static = append(static, payer)
	static = append(static, writableSigners...)
	static = append(static, readonlySigners...)
	static = append(static, writable...)
	static = append(static, readonly...)

	all := append(append(append([]types.Pubkey{}, static...), loadedWritable...), loadedReadonly...)
	if len(all) > 256 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(all))
	}
	index := make(map[types.Pubkey]uint8, len(all))
	for i, key := range all {
		index[key] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(ixs))
	for i, ix := range ixs {
		c := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndexes: make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for j, acc := range ix.Accounts {
			c.AccountIndexes[j] = index[acc.Pubkey]
		}
		compiled[i] = c
	}

	return &MessageV0{
		Header: Header{
			NumRequiredSignatures:       uint8(1 + len(writableSigners) + len(readonlySigners)),
			NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
			NumReadonlyUnsignedAccounts: uint8(len(readonly)),
		},
		StaticAccountKeys:   static,
		RecentBlockhash:     blockhash,
		Instructions:        compiled,
		AddressTableLookups: lookups,
	}, nil
}

func metaFor(metas map[types.Pubkey]*keyMeta, key types.Pubkey) *keyMeta {
	m, ok := metas[key]
	if !ok {
		m = &keyMeta{}
		metas[key] = m
	}
	return m
}

// extract removes the keys of the requested writability that table can
// load and returns them with their table indexes.
func extract(metas map[types.Pubkey]*keyMeta, table LookupTable, writable bool) ([]types.Pubkey, []uint8) {
	var keys []types.Pubkey
	var indexes []uint8
	for i, addr := range table.Addresses {
		if i > 255 {
			break
		}
		m, ok := metas[addr]
		if !ok || m.signer || m.invoked || m.writable != writable {
			continue
		}
		keys = append(keys, addr)
		indexes = append(indexes, uint8(i))
		delete(metas, addr)
	}
	return keys, indexes
}

func sortedKeys(metas map[types.Pubkey]*keyMeta) []types.Pubkey {
	keys := make([]types.Pubkey, 0, len(metas))
	for k := range metas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return types.ComparePubkeys(keys[i], keys[j]) < 0
	})
	return keys
}

// Serialize encodes the message in its versioned wire format.
func (m *MessageV0) Serialize() []byte {
	buf := []byte{versionPrefix, m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts}

	buf = appendShortVecLen(buf, len(m.StaticAccountKeys))
	for _, key := range m.StaticAccountKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)

	buf = appendShortVecLen(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendShortVecLen(buf, len(ix.AccountIndexes))
		buf = append(buf, ix.AccountIndexes...)
		buf = appendShortVecLen(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}

	buf = appendShortVecLen(buf, len(m.AddressTableLookups))
	for _, l := range m.AddressTableLookups {
		buf = append(buf, l.AccountKey[:]...)
		buf = appendShortVecLen(buf, len(l.WritableIndexes))
		buf = append(buf, l.WritableIndexes...)
		buf = appendShortVecLen(buf, len(l.ReadonlyIndexes))
		buf = append(buf, l.ReadonlyIndexes...)
	}
	return buf
}

// appendShortVecLen appends n in the compact-u16 encoding: seven bits per
// byte, high bit set on every byte but the last.
func appendShortVecLen(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// EstimateTransactionSize compiles ixs against a default blockhash and
// returns the serialized transaction size, the packet limit, and the bytes
// left under it, which is negative when the transaction does not fit.
//
// The signature count is the number of distinct signer accounts across ixs,
// at least one.
func EstimateTransactionSize(payer types.Pubkey, ixs []svm.Instruction, tables []LookupTable) (size, limit, remaining int, err error) {
	msg, err := CompileV0(payer, ixs, tables, types.Hash{})
	if err != nil {
		return 0, 0, 0, err
	}

	signers := make(map[types.Pubkey]struct{})
	for _, ix := range ixs {
		for _, acc := range ix.Accounts {
			if acc.IsSigner {
				signers[acc.Pubkey] = struct{}{}
			}
		}
	}
	numSigners := max(len(signers), 1)

	size = 1 + numSigners*64 + len(msg.Serialize())
	return size, PacketDataSize, PacketDataSize - size, nil
}
