package txn

import (
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// ErrTransactionFailed matches every *TransactionError.
var ErrTransactionFailed = errors.New("transaction failed")

// TransactionError is returned by strict execution when an instruction
// fails. The store has already been restored when it is returned.
type TransactionError struct {
	// Index is the zero-based position of the failing instruction.
	Index int

	// Err is the raw failure of that instruction.
	Err *svm.InstructionError
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed at instruction %d: %v", e.Index, e.Err)
}

// Unwrap returns the instruction failure.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransactionFailed.
func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// Result aggregates the outcomes of the instructions a transaction ran.
type Result struct {
	// Results holds one entry per attempted instruction, in order.
	Results []*svm.InstructionResult

	TotalComputeUnits  uint64
	TotalExecutionTime time.Duration
}

func (r *Result) add(ir *svm.InstructionResult) {
	r.Results = append(r.Results, ir)
	r.TotalComputeUnits += ir.ComputeUnitsConsumed
	r.TotalExecutionTime += ir.ExecutionTime
}

// IsSuccess reports whether every attempted instruction succeeded. An empty
// result is successful.
func (r *Result) IsSuccess() bool {
	_, failed := r.FailedAt()
	return !failed
}

// FailedAt returns the index of the first failed instruction.
func (r *Result) FailedAt() (int, bool) {
	for i, ir := range r.Results {
		if !ir.IsSuccess() {
			return i, true
		}
	}
	return 0, false
}

// Last returns the final attempted instruction's result.
func (r *Result) Last() (*svm.InstructionResult, bool) {
	if len(r.Results) == 0 {
		return nil, false
	}
	return r.Results[len(r.Results)-1], true
}

// Len returns the number of attempted instructions.
func (r *Result) Len() int {
	return len(r.Results)
}

// Logs returns every instruction's log lines, concatenated in order.
func (r *Result) Logs() []string {
	var out []string
	for _, ir := range r.Results {
		out = append(out, ir.Logs...)
	}
	return out
}
