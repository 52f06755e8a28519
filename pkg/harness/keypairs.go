package harness

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/stratus-harness/internal/types"
)

var (
	// ErrKeypairNotFound is returned for a name that was never stored.
	ErrKeypairNotFound = errors.New("keypair not found")

	// ErrLockContention is returned when the keypair registry is held by
	// another caller. The registry never blocks.
	ErrLockContention = errors.New("keypair registry lock contention")
)

// keyRegistry maps names to keypairs. Critical sections cover only the map
// access; signing happens outside the lock.
type keyRegistry struct {
	mu   sync.RWMutex
	keys map[string]*types.Keypair
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{keys: make(map[string]*types.Keypair)}
}

func (r *keyRegistry) store(name string, kp *types.Keypair) error {
	if !r.mu.TryLock() {
		return ErrLockContention
	}
	defer r.mu.Unlock()
	r.keys[name] = kp
	return nil
}

func (r *keyRegistry) get(name string) (*types.Keypair, error) {
	if !r.mu.TryRLock() {
		return nil, ErrLockContention
	}
	kp, ok := r.keys[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeypairNotFound, name)
	}
	return kp, nil
}

// StoreKeypair registers kp under name, replacing any previous keypair.
func (c *Context) StoreKeypair(name string, kp *types.Keypair) error {
	return c.keypairs.store(name, kp)
}

// SignWith signs message with the keypair stored under name.
func (c *Context) SignWith(name string, message []byte) (types.Signature, error) {
	kp, err := c.keypairs.get(name)
	if err != nil {
		return types.Signature{}, err
	}
	return kp.Sign(message), nil
}

// KeypairPubkey returns the public key of the keypair stored under name.
func (c *Context) KeypairPubkey(name string) (types.Pubkey, error) {
	kp, err := c.keypairs.get(name)
	if err != nil {
		return types.Pubkey{}, err
	}
	return kp.Pubkey(), nil
}
