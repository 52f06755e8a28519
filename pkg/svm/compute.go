package svm

// Compute unit limits.
// These match the Solana/Agave reference implementation.
const (
	CUDefault = uint64(200_000)   // Default CU limit per instruction
	CUMax     = uint64(1_400_000) // Max CU limit per transaction
)

// Native program base costs.
const (
	CUSystemProgramDefault  = uint64(150)
	CUComputeBudgetDefault  = uint64(150)
	CUTokenDefault          = uint64(4_500)
	CUAssociatedTokenCreate = uint64(20_000)
	CUMemoBase              = uint64(100)
	CUMemoPerByte           = uint64(10)
	CUFindProgramAddress    = uint64(1_500) // per bump iteration
)

// ComputeMeter tracks compute unit consumption for one instruction.
//
// The engine runs one instruction at a time on one goroutine, so the meter
// is not synchronized.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a meter with the given limit, capped at CUMax.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{remaining: limit, limit: limit}
}

// Consume charges cost units. When fewer units remain, the meter is drained
// and a KindComputationalBudgetExceeded error is returned.
func (cm *ComputeMeter) Consume(cost uint64) error {
	if cm.remaining < cost {
		cm.consumed += cm.remaining
		cm.remaining = 0
		return NewInstructionError(KindComputationalBudgetExceeded, "")
	}
	cm.remaining -= cost
	cm.consumed += cost
	return nil
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return cm.remaining
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return cm.consumed
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}
