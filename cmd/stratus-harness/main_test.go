package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
)

func TestInspectFixture(t *testing.T) {
	logger = zerolog.Nop()
	path := filepath.Join(t.TempDir(), "state.x1hf")

	mint := types.NewUniquePubkey()
	holder := types.NewUniquePubkey()
	wallet := types.NewUniquePubkey()
	snap := accounts.NewSnapshot([]accounts.KeyedAccount{
		{Pubkey: mint, Account: token.NewMintAccount(wallet, 6)},
		{Pubkey: holder, Account: token.NewTokenAccount(mint, wallet, 42)},
		{Pubkey: wallet, Account: accounts.Account{Lamports: 9, Owner: types.SystemProgramAddr}},
	})
	require.NoError(t, writeFixture(path, snap))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	ctx, err := loadContext(path)
	require.NoError(t, err)
	assert.Equal(t, accounts.SnapshotFingerprint(snap), ctx.StateHash())

	rows := describe(ctx)
	require.Len(t, rows, 3)
	kinds := make(map[types.Pubkey]string)
	for _, r := range rows {
		kinds[r.Address] = r.Kind + " " + r.Detail
	}
	assert.Equal(t, "mint supply=0 decimals=6", kinds[mint])
	assert.Contains(t, kinds[holder], "amount=42")
	assert.Equal(t, " ", kinds[wallet])

	var table bytes.Buffer
	require.NoError(t, writeTable(&table, ctx.StateHash(), rows))
	assert.Contains(t, table.String(), "3 accounts, state hash "+ctx.StateHash().String())

	var out bytes.Buffer
	require.NoError(t, writeJSON(&out, ctx.StateHash(), rows))
	var decoded struct {
		StateHash string `json:"stateHash"`
		Accounts  []struct {
			Address types.Pubkey `json:"address"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, ctx.StateHash().String(), decoded.StateHash)
	assert.Len(t, decoded.Accounts, 3)

	_, err = loadContext(filepath.Join(t.TempDir(), "missing.x1hf"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "stratus-harness "+Version)
}

func TestCloneCommand(t *testing.T) {
	mint := types.NewUniquePubkey()
	wallet := types.NewUniquePubkey()
	mintAcc := token.NewMintAccount(wallet, 9)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64             `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "getSlot":
			resp["result"] = 77
		case "getMultipleAccounts":
			var keys []string
			_ = json.Unmarshal(req.Params[0], &keys)
			value := make([]any, len(keys))
			for i, key := range keys {
				if key != mint.String() {
					continue
				}
				value[i] = map[string]any{
					"data":       []string{base64.StdEncoding.EncodeToString(enc.EncodeAll(mintAcc.Data, nil)), "base64+zstd"},
					"executable": false,
					"lamports":   mintAcc.Lamports,
					"owner":      mintAcc.Owner.String(),
					"rentEpoch":  0,
				}
			}
			resp["result"] = map[string]any{"context": map[string]any{"slot": 77}, "value": value}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "mint.x1hf")

	rootCmd.SetArgs([]string{"clone", "--log-level", "error", "--rpc", srv.URL, "-o", path, mint.String()})
	require.NoError(t, rootCmd.Execute())

	ctx, err := loadContext(path)
	require.NoError(t, err)
	got, err := ctx.GetAccount(mint)
	require.NoError(t, err)
	assert.True(t, mintAcc.Equal(got))

	rootCmd.SetArgs([]string{"clone", "--log-level", "error", "--rpc", srv.URL, "-o", filepath.Join(dir, "partial.x1hf"), mint.String(), wallet.String()})
	assert.Error(t, rootCmd.Execute(), "missing accounts fail without --allow-missing")
	_, err = os.Stat(filepath.Join(dir, "partial.x1hf"))
	assert.True(t, os.IsNotExist(err))

	rootCmd.SetArgs([]string{"clone", "--log-level", "error", "--rpc", srv.URL, "--allow-missing", "-o", filepath.Join(dir, "partial.x1hf"), mint.String(), wallet.String()})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"clone", "not-an-address"})
	assert.Error(t, rootCmd.Execute())
}
