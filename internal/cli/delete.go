package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <class> <id>",
		Short: "Delete a node and its descendants",
		Long: `Delete a node, its whole subtree (children first), and detach it
from its parent.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				uid := n.UID()
				if err := n.Delete(rt.ctx); err != nil {
					return WrapExitError(ExitCommandError, "delete node", err)
				}
				return formatter.Success(fmt.Sprintf("deleted %s", uid))
			})
		},
	}
}
