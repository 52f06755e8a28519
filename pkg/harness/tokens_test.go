package harness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/harness"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/memo"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
)

func TestMintAndTransferTokens(t *testing.T) {
	ctx := newContext(t)
	authority := harness.NewUniquePubkey()
	alice, bob := harness.NewUniquePubkey(), harness.NewUniquePubkey()
	mint := harness.NewUniquePubkey()
	aliceTokens, bobTokens := harness.NewUniquePubkey(), harness.NewUniquePubkey()

	ctx.CreateMint(mint, authority, 6)
	ctx.CreateTokenAccount(aliceTokens, mint, alice, 0)
	ctx.CreateTokenAccount(bobTokens, mint, bob, 0)

	_, err := ctx.MintTo(mint, aliceTokens, authority, 1_000)
	require.NoError(t, err)

	result, err := ctx.TransferTokens(aliceTokens, bobTokens, alice, 400)
	require.NoError(t, err)
	assert.Equal(t, svm.CUTokenDefault, result.ComputeUnitsConsumed)

	aliceBal, err := ctx.TokenBalance(aliceTokens)
	require.NoError(t, err)
	bobBal, err := ctx.TokenBalance(bobTokens)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), aliceBal)
	assert.Equal(t, uint64(400), bobBal)

	mintAcc, err := ctx.GetAccount(mint)
	require.NoError(t, err)
	m, err := token.UnpackMint(mintAcc.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), m.Supply)

	_, err = ctx.TransferTokens(aliceTokens, bobTokens, alice, 601)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)

	_, err = ctx.TokenBalance(harness.NewUniquePubkey())
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)

	ctx.FundAccount(alice, 5)
	_, err = ctx.TokenBalance(alice)
	assert.Error(t, err)
}

func TestTokenTransferInTransaction(t *testing.T) {
	ctx := newContext(t)
	alice, bob := harness.NewUniquePubkey(), harness.NewUniquePubkey()
	mint := harness.NewUniquePubkey()
	aliceTokens, bobTokens := harness.NewUniquePubkey(), harness.NewUniquePubkey()

	ctx.FundAccount(alice, 1_000_000)
	ctx.CreateMint(mint, alice, 0)
	ctx.CreateTokenAccount(aliceTokens, mint, alice, 50)
	ctx.CreateTokenAccount(bobTokens, mint, bob, 0)

	result, err := ctx.Transaction().
		Add(token.Transfer(aliceTokens, bobTokens, alice, 20)).
		Add(system.Transfer(alice, bob, 1_000)).
		Add(memo.New("paid", alice)).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, 3, result.Len())

	bobBal, err := ctx.TokenBalance(bobTokens)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), bobBal)
	assert.Equal(t, uint64(1_000), balance(t, ctx, bob))
	assert.Contains(t, result.Logs(), `Program log: Memo (len 4): "paid"`)
}

func TestWrappedSOL(t *testing.T) {
	ctx := newContext(t)
	owner := harness.NewUniquePubkey()
	wrapped := harness.NewUniquePubkey()
	ctx.FundAccount(owner, 10_000)
	ctx.CreateNativeTokenAccount(wrapped, owner, 1_000)

	_, err := ctx.TransferSOL(owner, wrapped, 2_500)
	require.NoError(t, err)
	amount, err := ctx.TokenBalance(wrapped)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), amount)

	_, err = ctx.SyncNative(wrapped)
	require.NoError(t, err)
	amount, err = ctx.TokenBalance(wrapped)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_500), amount)
}

func TestCreateAssociatedTokenAccount(t *testing.T) {
	ctx := newContext(t)
	payer, wallet := harness.NewUniquePubkey(), harness.NewUniquePubkey()
	mint := harness.NewUniquePubkey()
	ctx.FundAccount(payer, 10_000_000)
	ctx.CreateMint(mint, payer, 9)

	ata := ctx.AssociatedTokenAddress(wallet, mint)
	_, err := ctx.CreateAssociatedTokenAccount(payer, wallet, mint)
	require.NoError(t, err)

	acc, err := ctx.GetAccount(ata)
	require.NoError(t, err)
	assert.Equal(t, harness.TokenProgramID, acc.Owner)
	assert.Equal(t, uint64(2_039_280), acc.Lamports)
	assert.Equal(t, uint64(10_000_000-2_039_280), balance(t, ctx, payer))

	_, err = ctx.MintTo(mint, ata, payer, 5)
	require.NoError(t, err)
	amount, err := ctx.TokenBalance(ata)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)

	ix := harness.CreateAssociatedTokenAccountInstruction(payer, wallet, mint)
	_, err = ctx.ProcessInstruction(ix)
	assert.Error(t, err, "the account already exists")
}
