package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/appforge/appforge/pkg/manifest"
)

func newValidateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate application manifests",
		Long: `Validate manifests against the manifest schema without touching the
database. Every file is checked and every violation is reported.`,
		Example: `  forge validate orders.json
  forge validate exports/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := manifest.NewCodec(zerolog.Nop())
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				_, err = codec.Decode(cmd.Context(), f)
				_ = f.Close()

				if err != nil {
					failed++
					log.Error().Err(err).Str("path", path).Msg("Invalid manifest")
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d manifests are invalid", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}
