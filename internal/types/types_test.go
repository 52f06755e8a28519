package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58(t *testing.T) {
	p, err := PubkeyFromBase58("11111111111111111111111111111111")
	require.NoError(t, err)
	assert.True(t, p.IsZero())
	assert.Equal(t, SystemProgramAddr, p)
	assert.Equal(t, "11111111111111111111111111111111", p.String())
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", TokenProgramAddr.String())

	_, err = PubkeyFromBase58("0OIl")
	assert.Error(t, err)
	_, err = PubkeyFromBase58("111")
	assert.ErrorIs(t, err, ErrInvalidPubkey)
	_, err = PubkeyFromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidPubkey)
}

func TestPubkeyText(t *testing.T) {
	type wrapper struct {
		Key Pubkey `json:"key"`
	}
	in := wrapper{Key: TokenProgramAddr}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}`, string(raw))

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestNewUniquePubkey(t *testing.T) {
	seen := make(map[Pubkey]bool)
	for i := 0; i < 1000; i++ {
		p := NewUniquePubkey()
		require.False(t, p.IsZero())
		require.False(t, seen[p], "duplicate pubkey %s", p)
		seen[p] = true
	}
}

func TestComparePubkeys(t *testing.T) {
	a, b := NewUniquePubkey(), NewUniquePubkey()
	assert.Equal(t, -1, ComparePubkeys(a, b))
	assert.Equal(t, 1, ComparePubkeys(b, a))
	assert.Equal(t, 0, ComparePubkeys(a, a))
}

func TestKeypair(t *testing.T) {
	alice := KeypairFromLabel("alice")
	assert.Equal(t, alice.Pubkey(), KeypairFromLabel("alice").Pubkey())
	assert.NotEqual(t, alice.Pubkey(), KeypairFromLabel("bob").Pubkey())

	msg := []byte("transfer")
	sig := alice.Sign(msg)
	assert.True(t, sig.Verify(alice.Pubkey(), msg))
	assert.False(t, sig.Verify(alice.Pubkey(), []byte("other")))
	assert.False(t, sig.Verify(KeypairFromLabel("bob").Pubkey(), msg))

	random, err := NewKeypair()
	require.NoError(t, err)
	assert.True(t, isOnCurve(random.Pubkey().Bytes()))

	seeded, err := KeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	again, err := KeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, seeded.Pubkey(), again.Pubkey())

	_, err = KeypairFromSeed(make([]byte, 16))
	assert.Error(t, err)
}

func TestSignatureAndHash(t *testing.T) {
	_, err := SignatureFromBytes(make([]byte, 63))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = HashFromBytes(make([]byte, 33))
	assert.ErrorIs(t, err, ErrInvalidHash)

	h := ComputeHash([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h.Hex())
	assert.False(t, h.IsZero())
}
