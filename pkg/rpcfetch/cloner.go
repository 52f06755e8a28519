package rpcfetch

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
)

// Default configuration values.
const (
	// DefaultRequestTimeout is the default timeout for RPC requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retries for failed requests.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retries.
	DefaultRetryDelay = 100 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay between retries.
	DefaultMaxRetryDelay = 5 * time.Second
)

// upgradeableProgramTag marks a program account of the upgradeable loader;
// the program data address follows it.
const upgradeableProgramTag = 2

// Config holds configuration for the Cloner.
type Config struct {
	// Commitment is the commitment level for account reads.
	Commitment string

	// RequestTimeout is the timeout for individual RPC requests.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries for a failed batch.
	MaxRetries int

	// RetryDelay is the initial delay between retries. It doubles on each
	// attempt up to MaxRetryDelay.
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay between retries.
	MaxRetryDelay time.Duration

	// Compress asks the cluster for zstd compressed account data.
	Compress bool

	// FollowProgramData also clones the program data account of every
	// cloned upgradeable program.
	FollowProgramData bool

	// Logger receives per-batch events.
	Logger zerolog.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Commitment:        "confirmed",
		RequestTimeout:    DefaultRequestTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		MaxRetryDelay:     DefaultMaxRetryDelay,
		Compress:          true,
		FollowProgramData: true,
		Logger:            zerolog.Nop(),
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: unknown commitment %q", ErrInvalidConfig, c.Commitment)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 || c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("%w: retry delays must satisfy 0 <= retry delay <= max retry delay", ErrInvalidConfig)
	}
	return nil
}

// Cloner copies accounts from a cluster into snapshots.
type Cloner struct {
	client *RPCClient
	config Config
	logger zerolog.Logger
}

// NewCloner creates a cloner that reads through pool.
func NewCloner(pool Pool, config Config) (*Cloner, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Cloner{
		client: NewRPCClient(pool, config.RequestTimeout),
		config: config,
		logger: config.Logger.With().Str("component", "rpcfetch").Logger(),
	}, nil
}

// Close releases the client's resources.
func (c *Cloner) Close() {
	c.client.Close()
}

// Clone fetches the accounts at addrs. Accounts that exist are returned in
// the snapshot; addresses with no account are returned in missing, in
// request order. Duplicate addresses are fetched once.
func (c *Cloner) Clone(ctx context.Context, addrs []types.Pubkey) (*accounts.Snapshot, []types.Pubkey, error) {
	requested := make(map[types.Pubkey]bool, len(addrs))
	pending := make([]types.Pubkey, 0, len(addrs))
	for _, addr := range addrs {
		if !requested[addr] {
			requested[addr] = true
			pending = append(pending, addr)
		}
	}

	var (
		entries []accounts.KeyedAccount
		missing []types.Pubkey
	)
	for len(pending) > 0 {
		found, absent, err := c.fetchAll(ctx, pending)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, found...)
		missing = append(missing, absent...)

		pending = pending[:0]
		if !c.config.FollowProgramData {
			break
		}
		for _, ka := range found {
			pd, ok := programDataAddress(ka.Account)
			if ok && !requested[pd] {
				requested[pd] = true
				pending = append(pending, pd)
			}
		}
	}

	c.logger.Debug().
		Int("requested", len(requested)).
		Int("found", len(entries)).
		Int("missing", len(missing)).
		Msg("accounts cloned")
	return accounts.NewSnapshot(entries), missing, nil
}

// fetchAll fetches addrs in request-sized batches.
func (c *Cloner) fetchAll(ctx context.Context, addrs []types.Pubkey) ([]accounts.KeyedAccount, []types.Pubkey, error) {
	var (
		found   []accounts.KeyedAccount
		missing []types.Pubkey
	)
	for start := 0; start < len(addrs); start += MaxAccountsPerRequest {
		end := min(start+MaxAccountsPerRequest, len(addrs))
		batch := addrs[start:end]

		accs, err := c.fetchWithRetry(ctx, batch)
		if err != nil {
			return nil, nil, err
		}
		for i, acc := range accs {
			if acc == nil {
				missing = append(missing, batch[i])
				continue
			}
			found = append(found, accounts.KeyedAccount{Pubkey: batch[i], Account: *acc})
		}
	}
	return found, missing, nil
}

// fetchWithRetry fetches one batch with exponential backoff.
func (c *Cloner) fetchWithRetry(ctx context.Context, batch []types.Pubkey) ([]*accounts.Account, error) {
	encoding := EncodingBase64
	if c.config.Compress {
		encoding = EncodingBase64Zstd
	}

	var lastErr error
	delay := c.config.RetryDelay

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		accs, slot, err := c.client.GetMultipleAccounts(ctx, batch, c.config.Commitment, encoding)
		if err == nil {
			c.logger.Debug().
				Int("accounts", len(batch)).
				Uint64("slot", slot).
				Int("attempt", attempt).
				Msg("batch fetched")
			return accs, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("batch fetch failed")

		if attempt < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.config.MaxRetryDelay)
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// programDataAddress returns the program data account an upgradeable
// program account points at.
func programDataAddress(acc accounts.Account) (types.Pubkey, bool) {
	if !acc.Executable || acc.Owner != types.BPFLoaderUpgradeableAddr || len(acc.Data) < 4+types.PubkeySize {
		return types.Pubkey{}, false
	}
	if binary.LittleEndian.Uint32(acc.Data[:4]) != upgradeableProgramTag {
		return types.Pubkey{}, false
	}
	var pd types.Pubkey
	copy(pd[:], acc.Data[4:4+types.PubkeySize])
	return pd, true
}
