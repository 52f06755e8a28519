package system

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// reader decodes bincode-encoded instruction data.
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, svm.ErrInvalidInstructionData
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) pubkey() (types.Pubkey, error) {
	var pk types.Pubkey
	b, err := r.take(len(pk))
	if err != nil {
		return pk, err
	}
	copy(pk[:], b)
	return pk, nil
}

// seed reads a u64 length-prefixed string.
func (r *reader) seed() (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.data)) {
		return "", svm.ErrInvalidInstructionData
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writer encodes bincode instruction data.
type writer struct {
	buf []byte
}

func newWriter(instruction uint32) *writer {
	w := &writer{buf: make([]byte, 0, 64)}
	w.u32(instruction)
	return w
}

func (w *writer) u32(v uint32) *writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *writer) u64(v uint64) *writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *writer) pubkey(pk types.Pubkey) *writer {
	w.buf = append(w.buf, pk[:]...)
	return w
}

func (w *writer) seed(s string) *writer {
	w.u64(uint64(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// Transfer builds a lamport transfer from a system-owned account.
func Transfer(from, to types.Pubkey, lamports uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(from, true),
			svm.Writable(to, false),
		},
		Data: newWriter(InstructionTransfer).u64(lamports).buf,
	}
}

// CreateAccount builds an instruction that funds, allocates and assigns a
// new account. Both from and newAccount must sign.
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(from, true),
			svm.Writable(newAccount, true),
		},
		Data: newWriter(InstructionCreateAccount).u64(lamports).u64(space).pubkey(owner).buf,
	}
}

// Assign builds an instruction that changes the owner of account.
func Assign(account, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.Writable(account, true)},
		Data:      newWriter(InstructionAssign).pubkey(owner).buf,
	}
}

// Allocate builds an instruction that gives account space bytes of data.
func Allocate(account types.Pubkey, space uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  []svm.AccountMeta{svm.Writable(account, true)},
		Data:      newWriter(InstructionAllocate).u64(space).buf,
	}
}

// CreateAccountWithSeed builds an instruction that creates the account at
// CreateWithSeed(base, seed, owner). When base differs from from it is
// appended as a signer.
func CreateAccountWithSeed(from, to, base types.Pubkey, seed string, lamports, space uint64, owner types.Pubkey) svm.Instruction {
	metas := []svm.AccountMeta{
		svm.Writable(from, true),
		svm.Writable(to, false),
	}
	if base != from {
		metas = append(metas, svm.Readonly(base, true))
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  metas,
		Data: newWriter(InstructionCreateAccountWithSeed).
			pubkey(base).seed(seed).u64(lamports).u64(space).pubkey(owner).buf,
	}
}

// AllocateWithSeed builds an allocate for a seed-derived account.
func AllocateWithSeed(account, base types.Pubkey, seed string, space uint64, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(account, false),
			svm.Readonly(base, true),
		},
		Data: newWriter(InstructionAllocateWithSeed).pubkey(base).seed(seed).u64(space).pubkey(owner).buf,
	}
}

// AssignWithSeed builds an assign for a seed-derived account.
func AssignWithSeed(account, base types.Pubkey, seed string, owner types.Pubkey) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(account, false),
			svm.Readonly(base, true),
		},
		Data: newWriter(InstructionAssignWithSeed).pubkey(base).seed(seed).pubkey(owner).buf,
	}
}

// TransferWithSeed builds a transfer out of a seed-derived account.
// fromOwner is the owner used when deriving from.
func TransferWithSeed(from, base types.Pubkey, seed string, fromOwner, to types.Pubkey, lamports uint64) svm.Instruction {
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(from, false),
			svm.Readonly(base, true),
			svm.Writable(to, false),
		},
		Data: newWriter(InstructionTransferWithSeed).u64(lamports).seed(seed).pubkey(fromOwner).buf,
	}
}
