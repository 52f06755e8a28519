// Package computebudget implements the Compute Budget program.
//
// Budget requests are honored when a transaction is assembled, not when it
// executes, so at execution time every well-formed instruction is a metered
// no-op.
package computebudget

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// ProgramID is the Compute Budget program address.
var ProgramID = types.ComputeBudgetProgramAddr

// Instruction discriminants.
const (
	InstructionRequestUnitsDeprecated uint8 = iota
	InstructionRequestHeapFrame
	InstructionSetComputeUnitLimit
	InstructionSetComputeUnitPrice
	InstructionSetLoadedAccountsDataSizeLimit
)

// payload sizes per instruction, excluding the tag.
var payloadSize = map[uint8]int{
	InstructionRequestUnitsDeprecated:         8,
	InstructionRequestHeapFrame:               4,
	InstructionSetComputeUnitLimit:            4,
	InstructionSetComputeUnitPrice:            8,
	InstructionSetLoadedAccountsDataSizeLimit: 4,
}

// Processor executes Compute Budget instructions.
type Processor struct{}

// NewProcessor creates a Compute Budget processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process validates the instruction encoding and charges the builtin cost.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUComputeBudgetDefault); err != nil {
		return err
	}
	if len(data) == 0 {
		return svm.ErrInvalidInstructionData
	}
	size, ok := payloadSize[data[0]]
	if !ok || len(data) != 1+size {
		return svm.ErrInvalidInstructionData
	}
	return nil
}

// SetComputeUnitLimit builds a compute unit limit request.
func SetComputeUnitLimit(units uint32) svm.Instruction {
	data := binary.LittleEndian.AppendUint32([]byte{InstructionSetComputeUnitLimit}, units)
	return svm.Instruction{ProgramID: ProgramID, Data: data}
}

// SetComputeUnitPrice builds a priority fee request, in micro-lamports per
// compute unit.
func SetComputeUnitPrice(microLamports uint64) svm.Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{InstructionSetComputeUnitPrice}, microLamports)
	return svm.Instruction{ProgramID: ProgramID, Data: data}
}

// RequestHeapFrame builds a heap size request.
func RequestHeapFrame(bytes uint32) svm.Instruction {
	data := binary.LittleEndian.AppendUint32([]byte{InstructionRequestHeapFrame}, bytes)
	return svm.Instruction{ProgramID: ProgramID, Data: data}
}
