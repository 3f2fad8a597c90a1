package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/nodal/internal/ledger"
	"github.com/roach88/nodal/internal/node"
)

// VerifyResult holds chain verification results for a class store.
type VerifyResult struct {
	Class    string          `json:"class"`
	Nodes    int             `json:"nodes"`
	Chains   int             `json:"chains"`
	Failures []VerifyFailure `json:"failures,omitempty"`
}

// VerifyFailure names one broken chain.
type VerifyFailure struct {
	Node    string `json:"node"`
	Ledger  string `json:"ledger"` // "_transactions" | "_state_transactions"
	Scheme  string `json:"scheme"`
	Message string `json:"message"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <class>",
		Short: "Verify every ledger chain stored for a class",
		Long: `Walk every node of a class and check the invariants of each
embedded chain: hash linkage, parent/child pointers, and recomputed
entry hashes. Any broken chain fails the command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				h, err := rt.handle(args[0])
				if err != nil {
					return err
				}
				nodes, err := h.GetAll(rt.tenant)
				if err != nil {
					return WrapExitError(ExitCommandError, "open store", err)
				}

				result := VerifyResult{Class: args[0], Nodes: len(nodes)}
				ids := make([]string, 0, len(nodes))
				for id := range nodes {
					ids = append(ids, id)
				}
				sort.Strings(ids)

				for _, id := range ids {
					data, err := nodes[id].GetData()
					if err != nil {
						return WrapExitError(ExitCommandError, "read node", err)
					}
					for _, key := range []string{node.TransactionsKey, node.StateTransactionsKey} {
						book, err := ledger.DecodeBook(data[key])
						if err != nil {
							result.Failures = append(result.Failures, VerifyFailure{
								Node: id, Ledger: key, Message: err.Error(),
							})
							continue
						}
						for scheme, chain := range book {
							result.Chains++
							formatter.VerboseLog("verifying %s %s/%s (%d entries)", id, key, scheme, len(chain))
							if err := ledger.Verify(chain); err != nil {
								result.Failures = append(result.Failures, VerifyFailure{
									Node: id, Ledger: key, Scheme: scheme, Message: err.Error(),
								})
							}
						}
					}
				}

				if len(result.Failures) > 0 {
					_ = formatter.Error("E001", fmt.Sprintf("%d broken chain(s)", len(result.Failures)), result.Failures)
					return &ExitError{
						Code:     ExitFailure,
						Message:  fmt.Sprintf("verification failed: %d broken chain(s)", len(result.Failures)),
						Rendered: true,
					}
				}
				if formatter.Format == "json" {
					return formatter.Success(result)
				}
				fmt.Fprintf(formatter.Writer, "%s %d node(s), %d chain(s) verified\n", okMark, result.Nodes, result.Chains)
				return nil
			})
		},
	}
}
