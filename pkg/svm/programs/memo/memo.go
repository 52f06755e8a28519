// Package memo implements the SPL Memo programs.
//
// Version 2 requires every account passed to the instruction to sign;
// version 1 performs no signer checks. Both reject memos that are not
// valid UTF-8.
package memo

import (
	"unicode/utf8"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// Program addresses.
var (
	ProgramID   = types.MemoProgramAddr
	ProgramIDV1 = types.MemoV1ProgramAddr
)

// Processor executes memo instructions.
type Processor struct {
	requireSigners bool
}

// NewProcessor returns the Memo v2 processor.
func NewProcessor() *Processor {
	return &Processor{requireSigners: true}
}

// NewProcessorV1 returns the legacy Memo v1 processor.
func NewProcessorV1() *Processor {
	return &Processor{}
}

// Process logs the memo after validating it.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUMemoBase + svm.CUMemoPerByte*uint64(len(data))); err != nil {
		return err
	}

	if p.requireSigners {
		missing := false
		for i := 0; i < ctx.NumAccounts(); i++ {
			acc, err := ctx.Account(i)
			if err != nil {
				return err
			}
			if !acc.IsSigner {
				ctx.Log("Missing required signature: %s", acc.Key)
				missing = true
			}
		}
		if missing {
			return svm.ErrMissingRequiredSignature
		}
	}

	if !utf8.Valid(data) {
		ctx.Log("Invalid UTF-8, from byte %d", validPrefix(data))
		return svm.ErrInvalidInstructionData
	}
	ctx.Log("Memo (len %d): %q", len(data), data)
	return nil
}

// validPrefix returns the length of the longest valid UTF-8 prefix.
func validPrefix(data []byte) int {
	n := 0
	for n < len(data) {
		r, size := utf8.DecodeRune(data[n:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		n += size
	}
	return n
}

// New builds a Memo v2 instruction signed by signers.
func New(memo string, signers ...types.Pubkey) svm.Instruction {
	metas := make([]svm.AccountMeta, len(signers))
	for i, s := range signers {
		metas[i] = svm.Readonly(s, true)
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts:  metas,
		Data:      []byte(memo),
	}
}
