package cli

import (
	"github.com/spf13/cobra"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create <class> [key=value...]",
		Short: "Create a node",
		Long: `Create a node with the given initial data. Without --id a fresh
uuid is minted. Creating an existing id merges the data into it.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				initial, err := parsePairs(args[1:])
				if err != nil {
					return WrapExitError(ExitCommandError, "parse arguments", err)
				}
				h, err := rt.handle(args[0])
				if err != nil {
					return err
				}
				n, err := h.Create(rt.ctx, id, initial)
				if err != nil {
					return WrapExitError(ExitFailure, "create rejected", err)
				}
				dict, err := n.ToDict()
				if err != nil {
					return WrapExitError(ExitCommandError, "read node", err)
				}
				return formatter.Success(dict)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "node id (minted when empty)")
	return cmd
}
