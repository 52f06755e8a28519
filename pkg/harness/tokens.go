package harness

import (
	"fmt"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/message"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
)

// CreateMint seeds an initialized mint with zero supply.
func (c *Context) CreateMint(mint, authority types.Pubkey, decimals uint8) {
	c.store.Put(mint, token.NewMintAccount(authority, decimals))
}

// CreateTokenAccount seeds an initialized token account holding amount.
func (c *Context) CreateTokenAccount(addr, mint, owner types.Pubkey, amount uint64) {
	c.store.Put(addr, token.NewTokenAccount(mint, owner, amount))
}

// CreateNativeTokenAccount seeds a wrapped SOL account whose token amount
// equals lamports.
func (c *Context) CreateNativeTokenAccount(addr, owner types.Pubkey, lamports uint64) {
	c.store.Put(addr, token.NewNativeTokenAccount(owner, lamports))
}

// TokenBalance returns the token amount held by the token account at addr.
func (c *Context) TokenBalance(addr types.Pubkey) (uint64, error) {
	acc, err := c.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	ta, err := token.UnpackAccount(acc.Data)
	if err != nil {
		return 0, fmt.Errorf("token account %s: %w", addr, err)
	}
	return ta.Amount, nil
}

// MintTo mints amount tokens into destination.
func (c *Context) MintTo(mint, destination, authority types.Pubkey, amount uint64) (*svm.InstructionResult, error) {
	return c.ProcessInstruction(token.MintTo(mint, destination, authority, amount))
}

// TransferTokens moves amount tokens between token accounts.
func (c *Context) TransferTokens(source, destination, authority types.Pubkey, amount uint64) (*svm.InstructionResult, error) {
	return c.ProcessInstruction(token.Transfer(source, destination, authority, amount))
}

// SyncNative updates a wrapped SOL account's amount from its lamports.
func (c *Context) SyncNative(addr types.Pubkey) (*svm.InstructionResult, error) {
	return c.ProcessInstruction(token.SyncNative(addr))
}

// TransferSOL moves lamports with the System program.
func (c *Context) TransferSOL(from, to types.Pubkey, lamports uint64) (*svm.InstructionResult, error) {
	return c.ProcessInstruction(system.Transfer(from, to, lamports))
}

// AssociatedTokenAddress returns the associated token account of wallet for
// mint.
func (c *Context) AssociatedTokenAddress(wallet, mint types.Pubkey) types.Pubkey {
	return associatedtoken.Address(wallet, mint)
}

// CreateAssociatedTokenAccount creates the associated token account of
// wallet for mint, funded by payer.
func (c *Context) CreateAssociatedTokenAccount(payer, wallet, mint types.Pubkey) (*svm.InstructionResult, error) {
	return c.ProcessInstruction(associatedtoken.Create(payer, wallet, mint))
}

// CreateAssociatedTokenAccountInstruction builds the instruction
// CreateAssociatedTokenAccount runs.
func CreateAssociatedTokenAccountInstruction(payer, wallet, mint types.Pubkey) svm.Instruction {
	return associatedtoken.Create(payer, wallet, mint)
}

// LookupTableAccount pairs a lookup table address with its contents.
func LookupTableAccount(key types.Pubkey, addresses []types.Pubkey) message.LookupTable {
	return message.LookupTable{Key: key, Addresses: addresses}
}

// TransactionSize returns the serialized size of a v0 transaction for ixs,
// the packet limit, and the bytes remaining under it.
func TransactionSize(payer types.Pubkey, ixs []svm.Instruction, tables []message.LookupTable) (size, limit, remaining int, err error) {
	return message.EstimateTransactionSize(payer, ixs, tables)
}
