// Package harness is the entry point for testing programs against a
// simulated account state.
//
// A Context owns an account store, an execution engine with the default
// native programs, a transaction executor and a keypair registry. Tests seed
// accounts directly, run single instructions or whole transactions, and
// inspect the resulting state:
//
//	ctx, _ := harness.New(harness.DefaultConfig())
//	ctx.FundAccount(alice, 1_000_000)
//	result, err := ctx.Transaction().
//		Add(system.Transfer(alice, bob, 500_000)).
//		Execute()
//
// A Context may be shared between goroutines, but transactions on it are
// not isolated from each other. Callers that run transactions concurrently
// must serialize them.
package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/engine"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/memo"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/txn"
)

// Context is a test context.
type Context struct {
	engine   *engine.Engine
	store    accounts.Store
	exec     *txn.Executor
	keypairs *keyRegistry

	logger zerolog.Logger
}

// New creates a context from cfg.
func New(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store = accounts.NewMemoryStore()
	}

	clock := svm.Clock{UnixTimestamp: cfg.UnixTimestamp, EpochStartTimestamp: cfg.UnixTimestamp}
	clock.WarpToSlot(cfg.Slot)

	eng := engine.New(engine.Config{
		ComputeUnitLimit: cfg.ComputeUnitLimit,
		Clock:            clock,
		Rent:             cfg.Rent,
		Logger:           cfg.Logger,
	})

	c := &Context{
		engine:   eng,
		store:    store,
		exec:     txn.NewExecutor(store, eng, cfg.Logger),
		keypairs: newKeyRegistry(),
		logger:   cfg.Logger.With().Str("component", "harness").Logger(),
	}

	if cfg.DefaultPrograms {
		c.addDefaultPrograms()
	}
	for _, p := range cfg.Programs {
		c.AddProgram(p.ID, p.Loader, p.Program)
	}

	c.logger.Debug().
		Int64("unix_timestamp", cfg.UnixTimestamp).
		Uint64("slot", cfg.Slot).
		Uint64("compute_unit_limit", cfg.ComputeUnitLimit).
		Int("programs", len(cfg.Programs)).
		Msg("context created")
	return c, nil
}

// addDefaultPrograms registers the SPL programs. Token-2022 is served by the
// Token processor for accounts without extensions.
func (c *Context) addDefaultPrograms() {
	c.engine.Register(token.ProgramID, token.NewProcessor())
	c.engine.Register(types.Token2022ProgramAddr, token.NewProcessor())
	c.engine.Register(associatedtoken.ProgramID, associatedtoken.NewProcessor())
	c.engine.Register(memo.ProgramID, memo.NewProcessor())
	c.engine.Register(memo.ProgramIDV1, memo.NewProcessorV1())
}

// AddProgram registers prog under id and seeds its executable program
// account, owned by loader.
func (c *Context) AddProgram(id types.Pubkey, loader Loader, prog svm.Program) {
	c.engine.Register(id, prog)
	rent := c.engine.Rent()
	c.store.Put(id, accounts.Account{
		Lamports:   rent.MinimumBalance(0),
		Owner:      loader.Address(),
		Executable: true,
	})
	c.logger.Debug().
		Str("program", id.String()).
		Stringer("loader", loader).
		Msg("program added")
}

// Engine returns the execution engine.
func (c *Context) Engine() *engine.Engine {
	return c.engine
}

// Store returns the account store.
func (c *Context) Store() accounts.Store {
	return c.store
}

// ProcessInstruction runs ix and returns its result. A program-reported
// failure is returned as a *svm.ProgramError, an engine failure as a
// *svm.InstructionError; the result is returned in both cases.
func (c *Context) ProcessInstruction(ix svm.Instruction) (*svm.InstructionResult, error) {
	result := c.engine.Apply(c.store, ix)
	return result, result.Failure()
}

// ProcessInstructionUnchecked runs ix and returns its result whatever the
// outcome.
func (c *Context) ProcessInstructionUnchecked(ix svm.Instruction) *svm.InstructionResult {
	return c.engine.Apply(c.store, ix)
}

// Transaction starts a multi-instruction transaction.
func (c *Context) Transaction() *txn.Builder {
	return c.exec.Transaction()
}

// Executor returns the transaction executor.
func (c *Context) Executor() *txn.Executor {
	return c.exec
}

// Clock

// Clock returns the clock sysvar.
func (c *Context) Clock() svm.Clock {
	return c.engine.Clock()
}

// SetUnixTimestamp sets the clock time.
func (c *Context) SetUnixTimestamp(ts int64) {
	c.engine.SetUnixTimestamp(ts)
}

// UnixTimestamp returns the clock time.
func (c *Context) UnixTimestamp() int64 {
	return c.engine.Clock().UnixTimestamp
}

// WarpToSlot moves the clock to slot.
func (c *Context) WarpToSlot(slot uint64) {
	c.engine.WarpToSlot(slot)
}

// Slot returns the clock slot.
func (c *Context) Slot() uint64 {
	return c.engine.Clock().Slot
}

// Accounts

// AddAccount inserts or overwrites the account at addr.
func (c *Context) AddAccount(addr types.Pubkey, acc accounts.Account) {
	c.store.Put(addr, acc)
}

// FundAccount sets addr to a data-less system account holding lamports.
func (c *Context) FundAccount(addr types.Pubkey, lamports uint64) {
	c.store.Put(addr, SystemAccount(lamports))
}

// AddProgramAccount seeds a funded, non-executable account owned by owner.
func (c *Context) AddProgramAccount(addr, owner types.Pubkey, data []byte) {
	c.store.Put(addr, ProgramAccount(owner, data))
}

// GetAccount returns the account at addr.
func (c *Context) GetAccount(addr types.Pubkey) (accounts.Account, error) {
	acc, ok := c.store.Get(addr)
	if !ok {
		return accounts.Account{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, addr)
	}
	return acc, nil
}

// GetBalance returns the lamports held at addr.
func (c *Context) GetBalance(addr types.Pubkey) (uint64, bool) {
	return c.store.Balance(addr)
}

// StateHash returns a digest of the whole store. Equal hashes mean
// byte-identical contents.
func (c *Context) StateHash() types.Hash {
	return accounts.Fingerprint(c.store)
}

// LoadFixture reads a fixture and writes every account in it into the
// store. Accounts not in the fixture are left alone.
func (c *Context) LoadFixture(r io.Reader) error {
	snap, err := accounts.ReadFixture(r)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	c.merge(snap)
	c.logger.Debug().Int("accounts", snap.Len()).Msg("fixture loaded")
	return nil
}

// AccountSource supplies accounts from outside the context, such as a live
// cluster. rpcfetch.Cloner implements it.
type AccountSource interface {
	Clone(ctx context.Context, addrs []types.Pubkey) (*accounts.Snapshot, []types.Pubkey, error)
}

// CloneAccounts copies the accounts at addrs from src into the store and
// returns the addresses src has no account for. Nothing is written if src
// fails.
func (c *Context) CloneAccounts(ctx context.Context, src AccountSource, addrs ...types.Pubkey) ([]types.Pubkey, error) {
	snap, missing, err := src.Clone(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("clone accounts: %w", err)
	}
	c.merge(snap)
	c.logger.Debug().
		Int("cloned", snap.Len()).
		Int("missing", len(missing)).
		Msg("accounts cloned")
	return missing, nil
}

func (c *Context) merge(snap *accounts.Snapshot) {
	for _, ka := range snap.Entries() {
		c.store.Put(ka.Pubkey, ka.Account)
	}
}

// DumpFixture writes the current store contents as a fixture.
func (c *Context) DumpFixture(w io.Writer) error {
	if err := accounts.WriteFixture(w, c.store.Snapshot()); err != nil {
		return fmt.Errorf("dump fixture: %w", err)
	}
	return nil
}

// DefaultProgramAccountLamports funds accounts created by ProgramAccount.
const DefaultProgramAccountLamports = uint64(1_000_000_000)

// SystemAccount returns a data-less system account holding lamports.
func SystemAccount(lamports uint64) accounts.Account {
	return accounts.Account{Lamports: lamports, Owner: types.SystemProgramAddr}
}

// ProgramAccount returns a funded, non-executable account owned by owner.
func ProgramAccount(owner types.Pubkey, data []byte) accounts.Account {
	return accounts.Account{
		Lamports: DefaultProgramAccountLamports,
		Data:     data,
		Owner:    owner,
	}
}
