package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// Packed sizes.
const (
	MintSize    = 82
	AccountSize = 165
)

// AccountState is the state of a token account.
type AccountState uint8

const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// Mint is an SPL Token mint.
type Mint struct {
	// MintAuthority may mint new tokens. Nil means the supply is fixed.
	MintAuthority   *types.Pubkey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *types.Pubkey
}

// Account is an SPL Token account.
type Account struct {
	Mint   types.Pubkey
	Owner  types.Pubkey
	Amount uint64

	Delegate *types.Pubkey
	State    AccountState

	// IsNative holds the rent-exempt reserve of a wrapped SOL account.
	IsNative *uint64

	DelegatedAmount uint64
	CloseAuthority  *types.Pubkey
}

// IsFrozen reports whether the account is frozen.
func (a *Account) IsFrozen() bool {
	return a.State == StateFrozen
}

// Native reports whether the account wraps SOL.
func (a *Account) Native() bool {
	return a.IsNative != nil
}

// UnpackMint decodes an initialized mint.
func UnpackMint(data []byte) (*Mint, error) {
	m, err := unpackMintUnchecked(data)
	if err != nil {
		return nil, err
	}
	if !m.IsInitialized {
		return nil, svm.ErrUninitializedAccount
	}
	return m, nil
}

func unpackMintUnchecked(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, svm.ErrInvalidAccountData
	}
	authority, err := getCOptionPubkey(data[0:36])
	if err != nil {
		return nil, err
	}
	freeze, err := getCOptionPubkey(data[46:82])
	if err != nil {
		return nil, err
	}
	var initialized bool
	switch data[45] {
	case 0:
	case 1:
		initialized = true
	default:
		return nil, svm.ErrInvalidAccountData
	}
	return &Mint{
		MintAuthority:   authority,
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   initialized,
		FreezeAuthority: freeze,
	}, nil
}

// Pack encodes the mint into its 82-byte layout.
func (m *Mint) Pack() []byte {
	data := make([]byte, MintSize)
	putCOptionPubkey(data[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(data[36:44], m.Supply)
	data[44] = m.Decimals
	if m.IsInitialized {
		data[45] = 1
	}
	putCOptionPubkey(data[46:82], m.FreezeAuthority)
	return data
}

// UnpackAccount decodes an initialized token account.
func UnpackAccount(data []byte) (*Account, error) {
	a, err := unpackAccountUnchecked(data)
	if err != nil {
		return nil, err
	}
	if a.State == StateUninitialized {
		return nil, svm.ErrUninitializedAccount
	}
	return a, nil
}

func unpackAccountUnchecked(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, svm.ErrInvalidAccountData
	}
	delegate, err := getCOptionPubkey(data[72:108])
	if err != nil {
		return nil, err
	}
	if data[108] > uint8(StateFrozen) {
		return nil, svm.ErrInvalidAccountData
	}
	native, err := getCOptionU64(data[109:121])
	if err != nil {
		return nil, err
	}
	closeAuthority, err := getCOptionPubkey(data[129:165])
	if err != nil {
		return nil, err
	}

	a := &Account{
		Amount:          binary.LittleEndian.Uint64(data[64:72]),
		Delegate:        delegate,
		State:           AccountState(data[108]),
		IsNative:        native,
		DelegatedAmount: binary.LittleEndian.Uint64(data[121:129]),
		CloseAuthority:  closeAuthority,
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	return a, nil
}

// Pack encodes the account into its 165-byte layout.
func (a *Account) Pack() []byte {
	data := make([]byte, AccountSize)
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	putCOptionPubkey(data[72:108], a.Delegate)
	data[108] = uint8(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(data[109:113], 1)
		binary.LittleEndian.PutUint64(data[113:121], *a.IsNative)
	}
	binary.LittleEndian.PutUint64(data[121:129], a.DelegatedAmount)
	putCOptionPubkey(data[129:165], a.CloseAuthority)
	return data
}

func getCOptionPubkey(b []byte) (*types.Pubkey, error) {
	switch binary.LittleEndian.Uint32(b[0:4]) {
	case 0:
		return nil, nil
	case 1:
		var pk types.Pubkey
		copy(pk[:], b[4:36])
		return &pk, nil
	default:
		return nil, svm.ErrInvalidAccountData
	}
}

func putCOptionPubkey(b []byte, pk *types.Pubkey) {
	if pk == nil {
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], pk[:])
}

func getCOptionU64(b []byte) (*uint64, error) {
	switch binary.LittleEndian.Uint32(b[0:4]) {
	case 0:
		return nil, nil
	case 1:
		v := binary.LittleEndian.Uint64(b[4:12])
		return &v, nil
	default:
		return nil, svm.ErrInvalidAccountData
	}
}

// Seeding helpers. These build accounts directly, bypassing the program.

// DefaultAccountLamports funds seeded mints and token accounts.
const DefaultAccountLamports = uint64(1_000_000_000)

// NewMintAccount returns an initialized mint owned by the Token program with
// no freeze authority and zero supply.
func NewMintAccount(authority types.Pubkey, decimals uint8) accounts.Account {
	m := Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	}
	return accounts.Account{
		Lamports: DefaultAccountLamports,
		Data:     m.Pack(),
		Owner:    ProgramID,
	}
}

// NewTokenAccount returns an initialized token account holding amount.
func NewTokenAccount(mint, owner types.Pubkey, amount uint64) accounts.Account {
	a := Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  StateInitialized,
	}
	return accounts.Account{
		Lamports: DefaultAccountLamports,
		Data:     a.Pack(),
		Owner:    ProgramID,
	}
}

// NewNativeTokenAccount returns a wrapped SOL account whose token amount
// equals its lamports. The rent reserve is zero.
func NewNativeTokenAccount(owner types.Pubkey, lamports uint64) accounts.Account {
	var reserve uint64
	a := Account{
		Mint:     types.NativeMintAddr,
		Owner:    owner,
		Amount:   lamports,
		State:    StateInitialized,
		IsNative: &reserve,
	}
	return accounts.Account{
		Lamports: lamports,
		Data:     a.Pack(),
		Owner:    ProgramID,
	}
}
