// Package txn runs ordered instruction lists against an account store with
// transaction semantics.
//
// The execution engine applies one instruction at a time and may leave the
// store partially mutated when an instruction fails. The executor brackets
// the whole list with a store snapshot and decides centrally whether to keep
// or discard the mutations:
//
//   - Execute is strict: it stops at the first failure and restores.
//   - ExecuteAllowFailures runs every instruction and restores if any failed.
//   - DryRun stops at the first failure and always restores.
//
// None of the modes takes a snapshot or touches the store for an empty list.
package txn

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// Adapter executes a single instruction against a store, mutating it in
// place. *engine.Engine implements it.
type Adapter interface {
	Apply(store accounts.Store, ix svm.Instruction) *svm.InstructionResult
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(store accounts.Store, ix svm.Instruction) *svm.InstructionResult

// Apply calls f(store, ix).
func (f AdapterFunc) Apply(store accounts.Store, ix svm.Instruction) *svm.InstructionResult {
	return f(store, ix)
}

// Executor runs transactions against one store.
//
// An Executor does not serialize transactions; concurrent transactions on
// the same store see each other's intermediate state.
type Executor struct {
	store   accounts.Store
	adapter Adapter
	logger  zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(store accounts.Store, adapter Adapter, logger zerolog.Logger) *Executor {
	return &Executor{
		store:   store,
		adapter: adapter,
		logger:  logger.With().Str("component", "txn").Logger(),
	}
}

// Transaction starts a new instruction list.
func (e *Executor) Transaction() *Builder {
	return &Builder{exec: e}
}

// Execute runs ixs under strict atomicity. On the first failure the store is
// restored and a *TransactionError is returned together with the results up
// to and including the failing instruction.
func (e *Executor) Execute(ixs []svm.Instruction) (*Result, error) {
	if len(ixs) == 0 {
		return &Result{}, nil
	}

	snap := e.store.Snapshot()
	result, failed := e.run(ixs, true)
	if failed < 0 {
		e.logger.Debug().
			Int("instructions", len(ixs)).
			Uint64("compute_units", result.TotalComputeUnits).
			Msg("transaction committed")
		return result, nil
	}

	e.store.Restore(snap)
	txErr := &TransactionError{Index: failed, Err: result.Results[failed].Err}
	e.logger.Warn().
		Int("index", failed).
		AnErr("error", txErr.Err).
		Msg("transaction rolled back")
	return result, txErr
}

// ExecuteAllowFailures runs every instruction regardless of failures. If any
// instruction failed the store is restored, discarding the effects of the
// ones that succeeded too.
func (e *Executor) ExecuteAllowFailures(ixs []svm.Instruction) *Result {
	if len(ixs) == 0 {
		return &Result{}
	}

	snap := e.store.Snapshot()
	result, failed := e.run(ixs, false)
	if failed >= 0 {
		e.store.Restore(snap)
		e.logger.Warn().
			Int("index", failed).
			Int("instructions", len(ixs)).
			Msg("transaction rolled back after running all instructions")
	}
	return result
}

// DryRun runs ixs until the first failure and restores the store
// unconditionally.
func (e *Executor) DryRun(ixs []svm.Instruction) *Result {
	if len(ixs) == 0 {
		return &Result{}
	}

	snap := e.store.Snapshot()
	result, failed := e.run(ixs, true)
	e.store.Restore(snap)
	e.logger.Debug().
		Int("instructions", result.Len()).
		Bool("success", failed < 0).
		Msg("dry run restored")
	return result
}

// run applies ixs in order and returns the index of the first failure, or
// -1. With stopOnFailure no instruction after that index runs.
func (e *Executor) run(ixs []svm.Instruction, stopOnFailure bool) (*Result, int) {
	result := &Result{Results: make([]*svm.InstructionResult, 0, len(ixs))}
	failed := -1
	for i, ix := range ixs {
		ir := e.apply(ix)
		result.add(ir)
		e.logger.Debug().
			Int("index", i).
			Str("program", ix.ProgramID.String()).
			Stringer("status", ir.Status).
			Uint64("compute_units", ir.ComputeUnitsConsumed).
			Msg("instruction executed")

		if ir.IsSuccess() {
			continue
		}
		if failed < 0 {
			failed = i
		}
		if stopOnFailure {
			break
		}
	}
	return result, failed
}

// apply calls the adapter, turning a panic or a missing result into an
// unclassified failure.
func (e *Executor) apply(ix svm.Instruction) (ir *svm.InstructionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("program", ix.ProgramID.String()).
				Interface("panic", r).
				Msg("adapter panicked")
			ir = unknownError(fmt.Sprintf("adapter panic: %v", r))
		}
	}()

	ir = e.adapter.Apply(e.store, ix)
	if ir == nil {
		return unknownError("adapter returned no result")
	}
	if !ir.IsSuccess() && ir.Err == nil {
		ir.Status = svm.StatusUnknownError
		ir.Err = svm.NewInstructionError(svm.KindGenericError, "adapter reported failure without detail")
	}
	return ir
}

func unknownError(detail string) *svm.InstructionResult {
	return &svm.InstructionResult{
		Status: svm.StatusUnknownError,
		Err:    svm.NewInstructionError(svm.KindGenericError, detail),
	}
}

// Builder accumulates instructions for one transaction.
type Builder struct {
	exec         *Executor
	instructions []svm.Instruction
}

// Add appends an instruction.
func (b *Builder) Add(ix svm.Instruction) *Builder {
	b.instructions = append(b.instructions, ix)
	return b
}

// AddAll appends instructions in order.
func (b *Builder) AddAll(ixs ...svm.Instruction) *Builder {
	b.instructions = append(b.instructions, ixs...)
	return b
}

// Instructions returns the accumulated list.
func (b *Builder) Instructions() []svm.Instruction {
	return b.instructions
}

// Execute runs the list under strict atomicity. See Executor.Execute.
func (b *Builder) Execute() (*Result, error) {
	return b.exec.Execute(b.instructions)
}

// ExecuteAllowFailures runs every instruction. See
// Executor.ExecuteAllowFailures.
func (b *Builder) ExecuteAllowFailures() *Result {
	return b.exec.ExecuteAllowFailures(b.instructions)
}

// DryRun runs the list without keeping its effects. See Executor.DryRun.
func (b *Builder) DryRun() *Result {
	return b.exec.DryRun(b.instructions)
}
