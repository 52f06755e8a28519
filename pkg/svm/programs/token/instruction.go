package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

func amountData(tag uint8, amount uint64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{tag}, amount)
}

// InitializeMint2 builds a mint initialization. freeze may be nil.
func InitializeMint2(mint, authority types.Pubkey, freeze *types.Pubkey, decimals uint8) svm.Instruction {
	data := make([]byte, 0, 67)
	data = append(data, InstructionInitializeMint2, decimals)
	data = append(data, authority[:]...)
	if freeze == nil {
		data = append(data, 0)
	} else {
		data = append(data, 1)
		data = append(data, freeze[:]...)
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.Writable(mint, false)},
		Data:      data,
	}
}

// InitializeAccount3 builds a token account initialization.
func InitializeAccount3(account, mint, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(account, false),
			svm.Readonly(mint, false),
		},
		Data: append([]byte{InstructionInitializeAccount3}, owner[:]...),
	}
}

// Transfer builds a token transfer signed by authority, the owner or
// delegate of source.
func Transfer(source, destination, authority types.Pubkey, amount uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(source, false),
			svm.Writable(destination, false),
			svm.Readonly(authority, true),
		},
		Data: amountData(InstructionTransfer, amount),
	}
}

// TransferChecked builds a transfer that also asserts the mint and its
// decimals.
func TransferChecked(source, mint, destination, authority types.Pubkey, amount uint64, decimals uint8) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(source, false),
			svm.Readonly(mint, false),
			svm.Writable(destination, false),
			svm.Readonly(authority, true),
		},
		Data: append(amountData(InstructionTransferChecked, amount), decimals),
	}
}

// MintTo builds a mint of amount new tokens into destination.
func MintTo(mint, destination, authority types.Pubkey, amount uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(mint, false),
			svm.Writable(destination, false),
			svm.Readonly(authority, true),
		},
		Data: amountData(InstructionMintTo, amount),
	}
}

// MintToChecked builds a MintTo that also asserts the mint decimals.
func MintToChecked(mint, destination, authority types.Pubkey, amount uint64, decimals uint8) svm.Instruction {
	ix := MintTo(mint, destination, authority, amount)
	ix.Data = append(amountData(InstructionMintToChecked, amount), decimals)
	return ix
}

// Burn builds a burn of amount tokens from account.
func Burn(account, mint, authority types.Pubkey, amount uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(account, false),
			svm.Writable(mint, false),
			svm.Readonly(authority, true),
		},
		Data: amountData(InstructionBurn, amount),
	}
}

// Approve builds a delegation of amount tokens from source to delegate.
func Approve(source, delegate, owner types.Pubkey, amount uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(source, false),
			svm.Readonly(delegate, false),
			svm.Readonly(owner, true),
		},
		Data: amountData(InstructionApprove, amount),
	}
}

// Revoke builds a delegation revocation.
func Revoke(source, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(source, false),
			svm.Readonly(owner, true),
		},
		Data: []byte{InstructionRevoke},
	}
}

// CloseAccount builds an instruction that closes account and sends its
// lamports to destination.
func CloseAccount(account, destination, authority types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(account, false),
			svm.Writable(destination, false),
			svm.Readonly(authority, true),
		},
		Data: []byte{InstructionCloseAccount},
	}
}

// SyncNative builds an instruction that sets a wrapped SOL account's token
// amount from its lamports.
func SyncNative(account types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.Writable(account, false)},
		Data:      []byte{InstructionSyncNative},
	}
}
