package harness

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// ErrInvalidConfig is returned by New for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid harness configuration")

// Loader selects the loader that owns a program account.
type Loader uint8

const (
	// LoaderV3 is the upgradeable BPF loader.
	LoaderV3 Loader = iota

	// LoaderV2 is the non-upgradeable BPF loader.
	LoaderV2
)

// Address returns the loader's program id.
func (l Loader) Address() types.Pubkey {
	if l == LoaderV2 {
		return types.BPFLoader2Addr
	}
	return types.BPFLoaderUpgradeableAddr
}

func (l Loader) String() string {
	switch l {
	case LoaderV2:
		return "v2"
	case LoaderV3:
		return "v3"
	default:
		return fmt.Sprintf("loader(%d)", uint8(l))
	}
}

// ProgramSpec is a program installed when the context is created.
type ProgramSpec struct {
	ID      types.Pubkey
	Loader  Loader
	Program svm.Program
}

// Config holds the configuration for a Context.
type Config struct {
	// Logger receives harness, executor and engine events.
	Logger zerolog.Logger

	// Store is the account store to run against. Defaults to a fresh
	// MemoryStore.
	Store accounts.Store

	// UnixTimestamp is the initial clock time in seconds.
	UnixTimestamp int64

	// Slot is the initial clock slot.
	Slot uint64

	// ComputeUnitLimit is the per-instruction compute budget, at most
	// svm.CUMax.
	ComputeUnitLimit uint64

	// Rent is the rent sysvar.
	Rent svm.Rent

	// DefaultPrograms registers Token, Token-2022, Associated Token and both
	// Memo programs.
	DefaultPrograms bool

	// Programs are additional programs to install.
	Programs []ProgramSpec
}

// DefaultConfig returns a configuration whose clock starts at the current
// wall-clock second.
func DefaultConfig() Config {
	return Config{
		Logger:           zerolog.Nop(),
		UnixTimestamp:    time.Now().Unix(),
		ComputeUnitLimit: svm.CUDefault,
		Rent:             svm.DefaultRent(),
		DefaultPrograms:  true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.UnixTimestamp < 0 {
		return fmt.Errorf("%w: unix timestamp must not be negative", ErrInvalidConfig)
	}
	if c.ComputeUnitLimit == 0 || c.ComputeUnitLimit > svm.CUMax {
		return fmt.Errorf("%w: compute unit limit must be in (0, %d]", ErrInvalidConfig, svm.CUMax)
	}
	if c.Rent.LamportsPerByteYear == 0 {
		return fmt.Errorf("%w: rent must charge per byte", ErrInvalidConfig)
	}
	for i, p := range c.Programs {
		if p.ID.IsZero() {
			return fmt.Errorf("%w: program %d has no id", ErrInvalidConfig, i)
		}
		if p.Program == nil {
			return fmt.Errorf("%w: program %s has no processor", ErrInvalidConfig, p.ID)
		}
		if p.Loader != LoaderV2 && p.Loader != LoaderV3 {
			return fmt.Errorf("%w: program %s has unknown %s", ErrInvalidConfig, p.ID, p.Loader)
		}
	}
	return nil
}
