// Package rpcfetch clones accounts from a live cluster over JSON-RPC so a
// harness context can run programs against real on-chain state.
//
// The package consists of three parts:
//
//   - Pool: round-robin endpoint selection with health tracking
//   - RPCClient: JSON-RPC transport for getMultipleAccounts and getSlot
//   - Cloner: batching, retries and program data resolution
//
// # Usage
//
//	pool := rpcfetch.NewSimplePool([]string{"https://rpc.mainnet.x1.xyz"})
//	cloner, err := rpcfetch.NewCloner(pool, rpcfetch.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	snap, missing, err := cloner.Clone(ctx, []types.Pubkey{mint, vault})
//
// The returned snapshot can be written with accounts.WriteFixture or merged
// into a context with harness.Context.CloneAccounts. Addresses with no
// account on the cluster are reported in missing and left out of the
// snapshot.
//
// # Program data
//
// With Config.FollowProgramData set, cloning an upgradeable program also
// clones the program data account its program account points at, so the
// pair can be loaded together.
package rpcfetch
