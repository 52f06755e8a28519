package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// keypairLabelSalt scopes labelled keypairs to this harness.
var keypairLabelSalt = []byte("stratus-harness/keypair/v1")

// Keypair is an Ed25519 signing key together with its public key.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed builds a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromLabel deterministically derives a keypair from a human label,
// so tests can refer to "alice" and get the same key on every run.
func KeypairFromLabel(label string) *Keypair {
	r := hkdf.New(sha256.New, []byte(label), keypairLabelSalt, nil)
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		// hkdf only fails after 255*32 bytes of output.
		panic(fmt.Sprintf("hkdf expand: %v", err))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}
}

// Pubkey returns the public key.
func (k *Keypair) Pubkey() Pubkey {
	var p Pubkey
	copy(p[:], k.private.Public().(ed25519.PublicKey))
	return p
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// Verify reports whether sig is a valid signature of message by pubkey.
func (s Signature) Verify(pubkey Pubkey, message []byte) bool {
	return ed25519.Verify(pubkey[:], message, s[:])
}
