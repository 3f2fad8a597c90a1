package cli

import (
	"github.com/spf13/cobra"
)

// NewChildrenCommand creates the children command.
func NewChildrenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "children <class> <id>",
		Short: "List a node's children",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(rootOpts, cmd, func(rt *runtime, formatter *OutputFormatter) error {
				n, err := rt.getNode(args[0], args[1])
				if err != nil {
					return err
				}
				children, err := n.Children()
				if err != nil {
					return WrapExitError(ExitCommandError, "list children", err)
				}
				out := make([]any, 0, len(children))
				for _, child := range children {
					out = append(out, map[string]any{
						"uid":   child.UID(),
						"class": child.Class(),
						"id":    child.ID(),
					})
				}
				return formatter.Success(out)
			})
		},
	}
}
