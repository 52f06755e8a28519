// Package engine executes single instructions against an account store.
//
// The engine provides the runtime environment for native programs:
// - Account loading (absent accounts appear as empty system-owned accounts)
// - Program dispatch and cross-program invocation
// - Compute metering and program logs
// - Post-execution account verification
// - Writing verified account changes back to the store
//
// An Engine has no notion of a transaction. Package txn layers strict,
// tolerant and dry-run semantics on top of Apply.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/computebudget"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
)

// Limits.
const (
	MaxInstructionDataSize = 10 * 1024 // 10 KB max instruction data
	MaxInvokeDepth         = 5         // top-level instruction plus 4 nested invocations
	MaxReturnData          = 1024

	CUInvokeBase       = uint64(1000) // Base cost for a cross-program invocation
	CUInvokePerAccount = uint64(10)   // Cost per account in a cross-program invocation
)

// Config configures an Engine.
type Config struct {
	// ComputeUnitLimit is the per-instruction compute budget, capped at
	// svm.CUMax.
	ComputeUnitLimit uint64

	// Clock is the initial clock sysvar.
	Clock svm.Clock

	// Rent is the rent sysvar.
	Rent svm.Rent

	// Logger receives per-instruction debug events.
	Logger zerolog.Logger
}

// DefaultConfig returns a configuration with the maximum compute budget,
// slot 0 and mainnet rent.
func DefaultConfig() Config {
	return Config{
		ComputeUnitLimit: svm.CUMax,
		Rent:             svm.DefaultRent(),
		Logger:           zerolog.Nop(),
	}
}

// Engine executes instructions with registered native programs.
type Engine struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]svm.Program
	clock    svm.Clock
	rent     svm.Rent
	cuLimit  uint64

	logger zerolog.Logger
}

// New creates an engine with the System and Compute Budget programs
// registered.
func New(cfg Config) *Engine {
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = svm.CUMax
	}
	if cfg.Rent == (svm.Rent{}) {
		cfg.Rent = svm.DefaultRent()
	}

	e := &Engine{
		programs: make(map[types.Pubkey]svm.Program),
		clock:    cfg.Clock,
		rent:     cfg.Rent,
		cuLimit:  cfg.ComputeUnitLimit,
		logger:   cfg.Logger.With().Str("component", "engine").Logger(),
	}
	e.Register(system.ProgramID, system.NewProcessor())
	e.Register(computebudget.ProgramID, computebudget.NewProcessor())
	return e
}

// Register installs prog as the processor for id, replacing any previous
// registration.
func (e *Engine) Register(id types.Pubkey, prog svm.Program) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[id] = prog
}

// Program returns the processor registered for id.
func (e *Engine) Program(id types.Pubkey) (svm.Program, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	prog, ok := e.programs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", svm.ErrProgramNotFound, id)
	}
	return prog, nil
}

// Clock returns the current clock sysvar.
func (e *Engine) Clock() svm.Clock {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock
}

// SetClock replaces the clock sysvar.
func (e *Engine) SetClock(c svm.Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = c
}

// WarpToSlot moves the clock to slot.
func (e *Engine) WarpToSlot(slot uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.WarpToSlot(slot)
}

// SetUnixTimestamp sets the clock's unix timestamp.
func (e *Engine) SetUnixTimestamp(ts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.UnixTimestamp = ts
}

// Rent returns the rent sysvar.
func (e *Engine) Rent() svm.Rent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rent
}

// ComputeUnitLimit returns the per-instruction compute budget.
func (e *Engine) ComputeUnitLimit() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cuLimit
}

// SetComputeUnitLimit changes the per-instruction compute budget.
func (e *Engine) SetComputeUnitLimit(limit uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cuLimit = limit
}

// Apply executes ix against store.
//
// On success every writable account the instruction referenced is written
// back to store. On failure store is left untouched. Apply never panics on
// program faults; they are reported as StatusUnknownError.
func (e *Engine) Apply(store accounts.Store, ix svm.Instruction) *svm.InstructionResult {
	start := time.Now()

	e.mu.RLock()
	inv := &invocation{
		engine: e,
		clock:  e.clock,
		rent:   e.rent,
		meter:  svm.NewComputeMeter(e.cuLimit),
		state:  make(map[types.Pubkey]*loadedAccount, len(ix.Accounts)),
	}
	e.mu.RUnlock()

	inv.load(store, ix.Accounts)

	var err error
	if len(ix.Data) > MaxInstructionDataSize {
		err = svm.NewInstructionError(svm.KindInvalidInstructionData,
			fmt.Sprintf("instruction data too large: %d bytes", len(ix.Data)))
	} else {
		err = inv.process(ix, nil, 1)
	}

	result := &svm.InstructionResult{
		ComputeUnitsConsumed: inv.meter.Consumed(),
		ReturnData:           inv.returnData,
		Logs:                 inv.logs,
	}
	classify(result, err)

	if result.IsSuccess() {
		inv.commit(store, ix.Accounts)
		result.ResultingAccounts = inv.resulting(false)
	} else {
		result.ResultingAccounts = inv.resulting(true)
	}
	result.ExecutionTime = time.Since(start)

	ev := e.logger.Debug()
	if !result.IsSuccess() {
		ev = ev.AnErr("error", result.Err)
	}
	ev.Str("program", ix.ProgramID.String()).
		Stringer("status", result.Status).
		Uint64("compute_units", result.ComputeUnitsConsumed).
		Dur("elapsed", result.ExecutionTime).
		Msg("instruction applied")

	return result
}

// classify fills in the status and error fields of result.
func classify(result *svm.InstructionResult, err error) {
	if err == nil {
		result.Status = svm.StatusSuccess
		return
	}

	var progErr *svm.ProgramError
	if errors.As(err, &progErr) && progErr.Kind.IsProgramKind() {
		result.Status = svm.StatusFailure
		result.ProgramErr = progErr
		result.Err = progErr.InstructionError()
		return
	}

	result.Status = svm.StatusUnknownError
	var ixErr *svm.InstructionError
	if errors.As(err, &ixErr) {
		result.Err = ixErr
		return
	}
	result.Err = svm.NewInstructionError(svm.KindGenericError, err.Error())
}
