package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCommand(opts *globalOptions) *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export <application-id>",
		Short: "Export an application manifest",
		Long: `Write the manifest of a stored application. Audit fields and policies are
stripped, and resources reference their page by name.`,
		Example: `  forge export 6651f0c2a3b4c5d6e7f80912 > orders.json
  forge export 6651f0c2a3b4c5d6e7f80912 --out orders.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnvironment(ctx, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			svc, err := env.service(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" && outFile != "-" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if err := svc.Export(ctx, args[0], w); err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %s to %s\n", args[0], outFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	return cmd
}
