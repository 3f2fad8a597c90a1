package cli

import (
	"github.com/spf13/cobra"
)

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <class> <id> <key=value>...",
		Short: "Update node data keys",
		Long: `Merge key=value pairs into a node's payload. Values are decoded as
JSON when they parse ("2", "true", "[1,2]") and kept as strings
otherwise. The identity keys "_id" and "_class" cannot be changed.`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				changes, err := parsePairs(args[2:])
				if err != nil {
					return WrapExitError(ExitCommandError, "parse arguments", err)
				}
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				if err := n.UpdateData(rt.ctx, changes); err != nil {
					return WrapExitError(ExitFailure, "update rejected", err)
				}
				data, err := n.GetData()
				if err != nil {
					return WrapExitError(ExitCommandError, "read node", err)
				}
				return formatter.Success(data)
			})
		},
	}
}
