package system_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/engine"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
)

func setup(t *testing.T) (*engine.Engine, accounts.Store, types.Pubkey) {
	t.Helper()
	store := accounts.NewMemoryStore()
	payer := types.NewUniquePubkey()
	store.Put(payer, accounts.Account{Lamports: 10_000_000, Owner: system.ProgramID})
	return engine.New(engine.DefaultConfig()), store, payer
}

func TestCreateAccount(t *testing.T) {
	e, store, payer := setup(t)
	newAcct := types.NewUniquePubkey()
	owner := types.NewUniquePubkey()

	result := e.Apply(store, system.CreateAccount(payer, newAcct, 1_000_000, 64, owner))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	acc, ok := store.Get(newAcct)
	require.True(t, ok)
	assert.Equal(t, uint64(1_000_000), acc.Lamports)
	assert.Equal(t, owner, acc.Owner)
	assert.Len(t, acc.Data, 64)

	bal, _ := store.Balance(payer)
	assert.Equal(t, uint64(9_000_000), bal)

	// A second create on the same address is rejected.
	result = e.Apply(store, system.CreateAccount(payer, newAcct, 1, 0, owner))
	assert.ErrorIs(t, result.Failure(), system.ErrAccountAlreadyInUse)
}

func TestCreateAccountRequiresBothSignatures(t *testing.T) {
	e, store, payer := setup(t)
	ix := system.CreateAccount(payer, types.NewUniquePubkey(), 1, 0, types.NewUniquePubkey())
	ix.Accounts[1].IsSigner = false

	result := e.Apply(store, ix)
	assert.ErrorIs(t, result.Failure(), svm.ErrMissingRequiredSignature)
}

func TestCreateAccountTooLarge(t *testing.T) {
	e, store, payer := setup(t)
	ix := system.CreateAccount(payer, types.NewUniquePubkey(), 1, accounts.MaxAccountDataSize+1, types.NewUniquePubkey())

	result := e.Apply(store, ix)
	assert.ErrorIs(t, result.Failure(), system.ErrInvalidAccountDataLength)
}

func TestTransferFromAccountWithData(t *testing.T) {
	e, store, payer := setup(t)
	holder := types.NewUniquePubkey()
	store.Put(holder, accounts.Account{Lamports: 100, Data: []byte{1}, Owner: system.ProgramID})

	result := e.Apply(store, system.Transfer(holder, payer, 10))
	assert.ErrorIs(t, result.Failure(), svm.ErrInvalidArgument)
}

func TestAssignAndAllocate(t *testing.T) {
	e, store, payer := setup(t)
	owner := types.NewUniquePubkey()

	result := e.Apply(store, system.Allocate(payer, 16))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	result = e.Apply(store, system.Assign(payer, owner))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	acc, _ := store.Get(payer)
	assert.Equal(t, owner, acc.Owner)
	assert.Len(t, acc.Data, 16)

	// Assigning to the current owner is a no-op even without a signature.
	ix := system.Assign(payer, owner)
	ix.Accounts[0].IsSigner = false
	assert.True(t, e.Apply(store, ix).IsSuccess())
}

func TestWithSeedInstructions(t *testing.T) {
	e, store, payer := setup(t)
	owner := types.NewUniquePubkey()

	derived, err := types.CreateWithSeed(payer, "escrow", owner)
	require.NoError(t, err)

	result := e.Apply(store, system.CreateAccountWithSeed(payer, derived, payer, "escrow", 5_000, 8, owner))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	acc, ok := store.Get(derived)
	require.True(t, ok)
	assert.Equal(t, owner, acc.Owner)
	assert.Len(t, acc.Data, 8)

	// Wrong seed does not derive the address.
	other := types.NewUniquePubkey()
	result = e.Apply(store, system.CreateAccountWithSeed(payer, other, payer, "escrow", 1, 0, owner))
	assert.ErrorIs(t, result.Failure(), system.ErrAddressWithSeedMismatch)
}

func TestTransferWithSeed(t *testing.T) {
	e, store, payer := setup(t)
	base := types.NewUniquePubkey()
	source, err := types.CreateWithSeed(base, "pot", system.ProgramID)
	require.NoError(t, err)
	store.Put(source, accounts.Account{Lamports: 500, Owner: system.ProgramID})

	result := e.Apply(store, system.TransferWithSeed(source, base, "pot", system.ProgramID, payer, 200))
	require.True(t, result.IsSuccess(), "unexpected failure: %v", result.Err)

	bal, _ := store.Balance(source)
	assert.Equal(t, uint64(300), bal)
}

func TestMalformedInstructionData(t *testing.T) {
	e, store, payer := setup(t)

	for _, data := range [][]byte{nil, {2, 0, 0, 0}, {99, 0, 0, 0}} {
		result := e.Apply(store, svm.Instruction{
			ProgramID: system.ProgramID,
			Accounts:  []svm.AccountMeta{svm.Writable(payer, true)},
			Data:      data,
		})
		assert.ErrorIs(t, result.Failure(), svm.ErrInvalidInstructionData, "data %v", data)
	}
}
