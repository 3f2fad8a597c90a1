package cli

import (
	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <class> <id>",
		Short: "Print a node's stored record",
		Long: `Print the full stored record of a node: identity columns plus the
payload. The id accepts any uid encoding, including the composite
"config$Class$id" form.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				dict, err := n.ToDict()
				if err != nil {
					return WrapExitError(ExitCommandError, "read node", err)
				}
				return formatter.Success(dict)
			})
		},
	}
}
