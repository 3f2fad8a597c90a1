package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nodal/internal/ledger"
)

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Work with a node's embedded transaction ledgers",
	}
	cmd.AddCommand(newLedgerAppendCommand(rootOpts))
	cmd.AddCommand(newLedgerBalanceCommand(rootOpts))
	cmd.AddCommand(newLedgerChainCommand(rootOpts))
	cmd.AddCommand(newLedgerRemoveCommand(rootOpts))
	cmd.AddCommand(newLedgerRebuildCommand(rootOpts))
	return cmd
}

func newLedgerAppendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		period    string
		keys      string
		values    string
		uniqueKey string
		state     bool
	)

	cmd := &cobra.Command{
		Use:   "append <class> <id> <scheme>",
		Short: "Append a transaction to a scheme",
		Long: `Append a cumulative transaction (or, with --state, a state
snapshot) to the named scheme. An empty --period defaults to today.
With --unique the append is idempotent on the given key.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				keyList := splitList(keys)
				valueList, err := parseFloats(values)
				if err != nil {
					return WrapExitError(ExitCommandError, "parse --values", err)
				}
				if len(valueList) == 0 {
					return NewExitError(ExitCommandError, "--values is required")
				}

				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				scheme := args[2]

				var (
					uid      string
					inserted = true
				)
				switch {
				case state:
					uid, err = n.StateAppend(rt.ctx, scheme, period, keyList, valueList, nil)
				case uniqueKey != "":
					uid, inserted, err = n.LedgerAppendUnique(rt.ctx, scheme, uniqueKey, period, keyList, valueList, nil)
				default:
					uid, err = n.LedgerAppend(rt.ctx, scheme, period, keyList, valueList, nil)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "append rejected", err)
				}
				return formatter.Success(map[string]any{
					"tx_uid":   uid,
					"inserted": inserted,
				})
			})
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "accounting period YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&keys, "keys", "", "comma-separated balance key parts")
	cmd.Flags().StringVar(&values, "values", "", "comma-separated values")
	cmd.Flags().StringVar(&uniqueKey, "unique", "", "dedup key for idempotent append")
	cmd.Flags().BoolVar(&state, "state", false, "append to the state ledger instead")
	return cmd
}

func newLedgerBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var state bool

	cmd := &cobra.Command{
		Use:           "balance <class> <id> <scheme>",
		Short:         "Print a scheme's current balances",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				var balances map[string][]float64
				if state {
					balances, err = n.State(args[2])
				} else {
					balances, err = n.Balance(args[2])
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "read ledger", err)
				}
				out := make(map[string]any, len(balances))
				for k, v := range balances {
					out[k] = v
				}
				return formatter.Success(out)
			})
		},
	}

	cmd.Flags().BoolVar(&state, "state", false, "read the state ledger instead")
	return cmd
}

func newLedgerChainCommand(rootOpts *RootOptions) *cobra.Command {
	var state bool

	cmd := &cobra.Command{
		Use:           "chain <class> <id> <scheme>",
		Short:         "Print a scheme's full transaction chain",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				var chain ledger.Chain
				if state {
					chain, err = n.StateTransactions(args[2])
				} else {
					chain, err = n.Transactions(args[2])
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "read ledger", err)
				}
				out := make([]any, 0, len(chain))
				for _, tx := range chain {
					out = append(out, tx)
				}
				return formatter.Success(out)
			})
		},
	}

	cmd.Flags().BoolVar(&state, "state", false, "read the state ledger instead")
	return cmd
}

func newLedgerRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <class> <id> <scheme> <unique-key>",
		Short:         "Remove a uniquely-keyed transaction and rebuild the chain",
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				removed, err := n.LedgerRemoveUnique(rt.ctx, args[2], args[3])
				if err != nil {
					return WrapExitError(ExitFailure, "remove rejected", err)
				}
				return formatter.Success(map[string]any{"removed": removed})
			})
		},
	}
}

func newLedgerRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rebuild <class> <id> <scheme>",
		Short:         "Recompute a scheme's balances, linkage, and hashes",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				if err := n.LedgerRebuild(rt.ctx, args[2]); err != nil {
					return WrapExitError(ExitFailure, "rebuild rejected", err)
				}
				return formatter.Success(fmt.Sprintf("rebuilt scheme %q", args[2]))
			})
		},
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
