package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/computebudget"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
)

func fund(store accounts.Store, lamports uint64) types.Pubkey {
	addr := types.NewUniquePubkey()
	store.Put(addr, accounts.Account{Lamports: lamports, Owner: types.SystemProgramAddr})
	return addr
}

func balance(t *testing.T, store accounts.Store, addr types.Pubkey) uint64 {
	t.Helper()
	bal, ok := store.Balance(addr)
	require.True(t, ok, "account %s missing", addr)
	return bal
}

func TestApplySystemTransfer(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	from := fund(store, 1_000)
	to := types.NewUniquePubkey()

	result := e.Apply(store, system.Transfer(from, to, 400))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	assert.Equal(t, uint64(600), balance(t, store, from))
	assert.Equal(t, uint64(400), balance(t, store, to))
	assert.Equal(t, svm.CUSystemProgramDefault, result.ComputeUnitsConsumed)
	assert.Greater(t, int64(result.ExecutionTime), int64(0))
	assert.Contains(t, result.Logs, "Program 11111111111111111111111111111111 success")

	post, ok := result.ResultingAccount(to)
	require.True(t, ok)
	assert.Equal(t, uint64(400), post.Lamports)
}

func TestApplyProgramFailureLeavesStore(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	from := fund(store, 100)
	to := fund(store, 5)
	before := accounts.Fingerprint(store)

	result := e.Apply(store, system.Transfer(from, to, 101))
	require.Equal(t, svm.StatusFailure, result.Status)
	require.NotNil(t, result.ProgramErr)
	assert.ErrorIs(t, result.ProgramErr, system.ErrResultWithNegativeLamports)
	assert.ErrorIs(t, result.Err, system.ErrResultWithNegativeLamports)
	assert.Equal(t, before, accounts.Fingerprint(store))

	pre, ok := result.ResultingAccount(from)
	require.True(t, ok)
	assert.Equal(t, uint64(100), pre.Lamports)
}

func TestApplyMissingSignature(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	from := fund(store, 100)
	ix := system.Transfer(from, types.NewUniquePubkey(), 1)
	ix.Accounts[0].IsSigner = false

	result := e.Apply(store, ix)
	assert.Equal(t, svm.StatusFailure, result.Status)
	assert.ErrorIs(t, result.Failure(), svm.ErrMissingRequiredSignature)
}

func TestApplyUnknownProgram(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	result := e.Apply(store, svm.Instruction{ProgramID: types.NewUniquePubkey()})
	require.Equal(t, svm.StatusUnknownError, result.Status)
	assert.Nil(t, result.ProgramErr)
	assert.Equal(t, svm.KindUnsupportedProgramID, result.Err.Kind)

	_, err := e.Program(types.NewUniquePubkey())
	assert.ErrorIs(t, err, svm.ErrProgramNotFound)
}

func TestApplyRecoversPanic(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())
	id := types.NewUniquePubkey()
	e.Register(id, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		var m map[string]int
		m["boom"]++
		return nil
	}))

	result := e.Apply(store, svm.Instruction{ProgramID: id})
	require.Equal(t, svm.StatusUnknownError, result.Status)
	assert.Equal(t, svm.KindProgramFailedToComplete, result.Err.Kind)
}

func TestApplyUnclassifiedError(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())
	id := types.NewUniquePubkey()
	e.Register(id, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		return errors.New("disk on fire")
	}))

	result := e.Apply(store, svm.Instruction{ProgramID: id})
	require.Equal(t, svm.StatusUnknownError, result.Status)
	assert.Equal(t, svm.KindGenericError, result.Err.Kind)
	assert.Contains(t, result.Err.Error(), "disk on fire")
}

func TestApplyPostExecutionChecks(t *testing.T) {
	progID := types.NewUniquePubkey()

	tests := []struct {
		name    string
		metas   func(owned, sys types.Pubkey) []svm.AccountMeta
		mutate  func(ctx svm.InvokeContext) error
		expKind svm.ErrorKind
	}{
		{
			name: "readonly data",
			metas: func(owned, _ types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Readonly(owned, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				acc, _ := ctx.Account(0)
				acc.Data[0] = 9
				return nil
			},
			expKind: svm.KindReadonlyDataModified,
		},
		{
			name: "readonly lamports",
			metas: func(owned, sys types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(owned, false), svm.Readonly(sys, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				b, _ := ctx.Account(1)
				a.Lamports--
				b.Lamports++
				return nil
			},
			expKind: svm.KindReadonlyLamportChange,
		},
		{
			name: "external spend",
			metas: func(owned, sys types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(sys, false), svm.Writable(owned, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				b, _ := ctx.Account(1)
				a.Lamports--
				b.Lamports++
				return nil
			},
			expKind: svm.KindExternalAccountLamportSpend,
		},
		{
			name: "external data",
			metas: func(_, sys types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(sys, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				a.Data = []byte{1}
				return nil
			},
			expKind: svm.KindExternalAccountDataModified,
		},
		{
			name: "unbalanced",
			metas: func(owned, _ types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(owned, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				a.Lamports++
				return nil
			},
			expKind: svm.KindUnbalancedInstruction,
		},
		{
			name: "executable flag",
			metas: func(owned, _ types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(owned, false)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				a.Executable = true
				return nil
			},
			expKind: svm.KindExecutableModified,
		},
		{
			name: "owner of foreign account",
			metas: func(_, sys types.Pubkey) []svm.AccountMeta {
				return []svm.AccountMeta{svm.Writable(sys, true)}
			},
			mutate: func(ctx svm.InvokeContext) error {
				a, _ := ctx.Account(0)
				a.Owner = ctx.ProgramID()
				return nil
			},
			expKind: svm.KindModifiedProgramID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := accounts.NewMemoryStore()
			owned := types.NewUniquePubkey()
			store.Put(owned, accounts.Account{Lamports: 10, Data: []byte{1, 2}, Owner: progID})
			sys := fund(store, 10)
			before := accounts.Fingerprint(store)

			e := New(DefaultConfig())
			e.Register(progID, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
				return tc.mutate(ctx)
			}))

			result := e.Apply(store, svm.Instruction{ProgramID: progID, Accounts: tc.metas(owned, sys)})
			require.Equal(t, svm.StatusUnknownError, result.Status)
			assert.Equal(t, tc.expKind, result.Err.Kind)
			assert.Equal(t, before, accounts.Fingerprint(store))
		})
	}
}

func TestApplyComputeBudgetExceeded(t *testing.T) {
	store := accounts.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.ComputeUnitLimit = 100
	e := New(cfg)

	from := fund(store, 100)
	result := e.Apply(store, system.Transfer(from, types.NewUniquePubkey(), 1))
	require.Equal(t, svm.StatusUnknownError, result.Status)
	assert.Equal(t, svm.KindComputationalBudgetExceeded, result.Err.Kind)
	assert.Equal(t, uint64(100), result.ComputeUnitsConsumed)
	assert.Equal(t, uint64(100), balance(t, store, from))
}

func TestApplyComputeBudgetProgram(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	result := e.Apply(store, computebudget.SetComputeUnitLimit(300_000))
	require.True(t, result.IsSuccess())
	assert.Equal(t, svm.CUComputeBudgetDefault, result.ComputeUnitsConsumed)

	result = e.Apply(store, svm.Instruction{ProgramID: computebudget.ProgramID, Data: []byte{2, 1}})
	assert.ErrorIs(t, result.Failure(), svm.ErrInvalidInstructionData)
}

func TestApplyAbsentAccountsStayAbsent(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	from := fund(store, 50)
	untouched := types.NewUniquePubkey()
	ix := system.Transfer(from, types.NewUniquePubkey(), 0)
	ix.Accounts = append(ix.Accounts, svm.Writable(untouched, false))

	result := e.Apply(store, ix)
	require.True(t, result.IsSuccess())
	_, ok := store.Get(untouched)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestApplyDuplicateAccountReferences(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	a := fund(store, 100)
	result := e.Apply(store, system.Transfer(a, a, 40))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)
	assert.Equal(t, uint64(100), balance(t, store, a))
	assert.Len(t, result.ResultingAccounts, 1)
}

func TestApplyOversizedData(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())

	result := e.Apply(store, svm.Instruction{
		ProgramID: system.ProgramID,
		Data:      make([]byte, MaxInstructionDataSize+1),
	})
	assert.Equal(t, svm.StatusUnknownError, result.Status)
	assert.Zero(t, result.ComputeUnitsConsumed)
}

func TestApplyReturnDataAndLogs(t *testing.T) {
	store := accounts.NewMemoryStore()
	e := New(DefaultConfig())
	id := types.NewUniquePubkey()
	e.Register(id, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		ctx.Log("echo %d bytes", len(data))
		ctx.SetReturnData(data)
		assert.Equal(t, 1, ctx.StackHeight())
		return nil
	}))

	result := e.Apply(store, svm.Instruction{ProgramID: id, Data: []byte("hi")})
	require.True(t, result.IsSuccess())
	assert.Equal(t, []byte("hi"), result.ReturnData)
	assert.Contains(t, result.Logs, "Program log: echo 2 bytes")
}

func TestClockAndRent(t *testing.T) {
	e := New(DefaultConfig())
	e.WarpToSlot(svm.DefaultSlotsPerEpoch * 3)
	e.SetUnixTimestamp(1_700_000_000)

	c := e.Clock()
	assert.Equal(t, uint64(3), c.Epoch)
	assert.Equal(t, int64(1_700_000_000), c.UnixTimestamp)
	assert.Equal(t, uint64(2_039_280), e.Rent().MinimumBalance(165))

	store := accounts.NewMemoryStore()
	id := types.NewUniquePubkey()
	var seen svm.Clock
	e.Register(id, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
		seen = ctx.Clock()
		return nil
	}))
	require.True(t, e.Apply(store, svm.Instruction{ProgramID: id}).IsSuccess())
	assert.Equal(t, c, seen)
}
