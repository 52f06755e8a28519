package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/harness"
	"github.com/fortiblox/stratus-harness/pkg/rpcfetch"
	"github.com/fortiblox/stratus-harness/pkg/rpcpool"
)

var _ harness.AccountSource = (*rpcfetch.Cloner)(nil)

var (
	cloneEndpoints     []string
	cloneReferences    []string
	cloneSlotThreshold uint64
	cloneOut           string
	cloneCommitment    string
	cloneNoProgramData bool
	cloneAllowMissing  bool
)

var cloneCmd = &cobra.Command{
	Use:   "clone ADDRESS...",
	Short: "Write the accounts at ADDRESS... to a fixture",
	Long: `Fetch accounts from a cluster over JSON-RPC and write them to a fixture.

Upgradeable programs are cloned together with their program data account
unless --no-program-data is set.

Example:
  stratus-harness clone -o usdc.x1hf EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs := make([]types.Pubkey, len(args))
		for i, arg := range args {
			addr, err := types.PubkeyFromBase58(arg)
			if err != nil {
				return fmt.Errorf("address %q: %w", arg, err)
			}
			addrs[i] = addr
		}

		cfg := rpcfetch.DefaultConfig()
		cfg.Commitment = cloneCommitment
		cfg.FollowProgramData = !cloneNoProgramData
		cfg.Logger = logger

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Stop()

		cloner, err := rpcfetch.NewCloner(pool, cfg)
		if err != nil {
			return err
		}
		defer cloner.Close()

		snap, missing, err := cloner.Clone(ctx, addrs)
		if err != nil {
			return fmt.Errorf("clone: %w", err)
		}
		for _, addr := range missing {
			logger.Warn().Str("address", addr.String()).Msg("no account at address")
		}
		if len(missing) > 0 && !cloneAllowMissing {
			return fmt.Errorf("%d of %d addresses have no account", len(missing), len(addrs))
		}

		if err := writeFixture(cloneOut, snap); err != nil {
			return err
		}
		logger.Info().
			Int("accounts", snap.Len()).
			Str("fingerprint", accounts.SnapshotFingerprint(snap).String()).
			Str("path", cloneOut).
			Msg("fixture written")
		return nil
	},
}

func init() {
	cloneCmd.Flags().StringSliceVar(&cloneEndpoints, "rpc", nil, "RPC endpoint URL (repeatable; default: X1 mainnet)")
	cloneCmd.Flags().StringSliceVar(&cloneReferences, "reference", nil, "Reference endpoint for the cluster slot (repeatable; default: the --rpc endpoints)")
	cloneCmd.Flags().Uint64Var(&cloneSlotThreshold, "slot-threshold", rpcpool.DefaultSlotThreshold, "Max slots an endpoint may trail the reference slot")
	cloneCmd.Flags().StringVarP(&cloneOut, "out", "o", "fixture.x1hf", "Fixture output path")
	cloneCmd.Flags().StringVar(&cloneCommitment, "commitment", "confirmed", "Commitment level: processed, confirmed, finalized")
	cloneCmd.Flags().BoolVar(&cloneNoProgramData, "no-program-data", false, "Do not clone program data accounts of upgradeable programs")
	cloneCmd.Flags().BoolVar(&cloneAllowMissing, "allow-missing", false, "Write the fixture even if some addresses have no account")
}

// newPool builds the endpoint pool and probes it once. A failed probe is
// logged and leaves every endpoint eligible.
func newPool(ctx context.Context) (*rpcpool.Pool, error) {
	endpoints := cloneEndpoints
	if len(endpoints) == 0 {
		endpoints = referenceEndpoints
	}

	cfg := rpcpool.DefaultConfig(endpoints...)
	cfg.References = cloneReferences
	cfg.SlotThreshold = cloneSlotThreshold
	cfg.Commitment = cloneCommitment
	cfg.Logger = logger
	pool, err := rpcpool.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("endpoint probe failed")
	} else {
		logger.Info().
			Uint64("reference_slot", pool.ReferenceSlot()).
			Int("healthy", pool.HealthyCount()).
			Int("endpoints", len(endpoints)).
			Msg("endpoints probed")
	}
	return pool, nil
}

// writeFixture writes snap to path, replacing it only once the fixture is
// complete.
func writeFixture(path string, snap *accounts.Snapshot) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := accounts.WriteFixture(f, snap); err != nil {
		_ = f.Close()
		return fmt.Errorf("write fixture: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close fixture: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename fixture: %w", err)
	}
	return nil
}
