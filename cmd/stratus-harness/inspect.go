package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/harness"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect FIXTURE",
	Short: "List the accounts in a fixture",
	Long: `Load a fixture into a fresh harness context and list its accounts with the
resulting state hash. Token mints and accounts are decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := loadContext(args[0])
		if err != nil {
			return err
		}
		rows := describe(ctx)
		if inspectJSON {
			return writeJSON(cmd.OutOrStdout(), ctx.StateHash(), rows)
		}
		return writeTable(cmd.OutOrStdout(), ctx.StateHash(), rows)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print JSON instead of a table")
}

// accountRow is one fixture account as printed by inspect.
type accountRow struct {
	Address    types.Pubkey `json:"address"`
	Owner      types.Pubkey `json:"owner"`
	Lamports   uint64       `json:"lamports"`
	DataLen    int          `json:"dataLen"`
	Executable bool         `json:"executable"`
	Kind       string       `json:"kind,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// loadContext creates a harness context seeded from the fixture at path.
func loadContext(path string) (*harness.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	cfg := harness.DefaultConfig()
	cfg.Logger = logger
	cfg.DefaultPrograms = false
	ctx, err := harness.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.LoadFixture(f); err != nil {
		return nil, err
	}
	return ctx, nil
}

func describe(ctx *harness.Context) []accountRow {
	entries := ctx.Store().Snapshot().Entries()
	rows := make([]accountRow, 0, len(entries))
	for _, ka := range entries {
		acc := ka.Account
		row := accountRow{
			Address:    ka.Pubkey,
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			DataLen:    len(acc.Data),
			Executable: acc.Executable,
		}
		if acc.Owner == types.TokenProgramAddr || acc.Owner == types.Token2022ProgramAddr {
			row.Kind, row.Detail = describeToken(acc.Data)
		} else if acc.Executable {
			row.Kind = "program"
		}
		rows = append(rows, row)
	}
	return rows
}

func describeToken(data []byte) (string, string) {
	switch len(data) {
	case token.MintSize:
		m, err := token.UnpackMint(data)
		if err != nil {
			return "mint", err.Error()
		}
		return "mint", fmt.Sprintf("supply=%d decimals=%d", m.Supply, m.Decimals)
	case token.AccountSize:
		a, err := token.UnpackAccount(data)
		if err != nil {
			return "token-account", err.Error()
		}
		return "token-account", fmt.Sprintf("mint=%s owner=%s amount=%d", a.Mint, a.Owner, a.Amount)
	default:
		return "", ""
	}
}

func writeTable(w io.Writer, hash types.Hash, rows []accountRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tOWNER\tLAMPORTS\tDATA\tEXEC\tKIND\tDETAIL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
			r.Address, r.Owner, r.Lamports, r.DataLen, r.Executable, r.Kind, r.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d accounts, state hash %s\n", len(rows), hash)
	return err
}

func writeJSON(w io.Writer, hash types.Hash, rows []accountRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		StateHash string       `json:"stateHash"`
		Accounts  []accountRow `json:"accounts"`
	}{hash.String(), rows})
}
