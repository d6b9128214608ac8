package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/appforge/appforge/pkg/imports"
	"github.com/appforge/appforge/pkg/service"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var importOpts service.ImportOptions

	cmd := &cobra.Command{
		Use:   "import <manifest>...",
		Short: "Import application manifests",
		Long: `Import one or more manifests. Without --app a new application is created
per manifest; with --app every manifest is reconciled into that application
in order. Use "-" to read a manifest from standard input.`,
		Example: `  # Create a new application
  forge import orders.json

  # Re-import into an existing application
  forge import --app 6651f0c2a3b4c5d6e7f80912 orders.json

  # Create a branch of an application
  forge import --branch-of 6651f0c2a3b4c5d6e7f80912 --branch feature/login orders.json`,
		Args: cobra.MinimumNArgs(1),
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

			for _, path := range args {
				summary, err := importFile(cmd, svc, path, importOpts)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := printSummary(cmd.OutOrStdout(), path, summary, opts.jsonOutput); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&importOpts.ApplicationID, "app", "", "import into this application")
	cmd.Flags().StringVar(&importOpts.BranchOf, "branch-of", "", "create the application as a branch of this one")
	cmd.Flags().StringVar(&importOpts.BranchName, "branch", "", "branch name of a new application")
	cmd.MarkFlagsMutuallyExclusive("app", "branch-of")

	return cmd
}

func importFile(cmd *cobra.Command, svc *service.Service, path string, opts service.ImportOptions) (*service.ImportSummary, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return svc.Import(cmd.Context(), r, opts)
}

type summaryOutput struct {
	Manifest           string                  `json:"manifest"`
	ImportID           string                  `json:"importId"`
	ApplicationID      string                  `json:"applicationId"`
	BranchName         string                  `json:"branchName,omitempty"`
	NewApplication     bool                    `json:"newApplication"`
	PagesCreated       int                     `json:"pagesCreated"`
	PagesUpdated       int                     `json:"pagesUpdated"`
	PagesDenied        int                     `json:"pagesDenied"`
	PageRenames        []imports.ContextRename `json:"pageRenames,omitempty"`
	CollectionsCreated int                     `json:"collectionsCreated"`
	CollectionsUpdated int                     `json:"collectionsUpdated"`
	CollectionsSkipped int                     `json:"collectionsSkipped"`
	CollectionsDenied  int                     `json:"collectionsDenied"`
	CollectionsFailed  int                     `json:"collectionsFailed"`
	Errors             string                  `json:"errors,omitempty"`
}

func printSummary(w io.Writer, path string, s *service.ImportSummary, asJSON bool) error {
	out := summaryOutput{
		Manifest:           path,
		ImportID:           s.ImportID,
		ApplicationID:      s.ApplicationID,
		BranchName:         s.BranchName,
		NewApplication:     s.Created,
		PagesCreated:       s.PagesCreated,
		PagesUpdated:       s.PagesUpdated,
		PagesDenied:        s.PagesDenied,
		PageRenames:        s.PageRenames,
		CollectionsCreated: s.Collections.Count(imports.OutcomeCreated),
		CollectionsUpdated: s.Collections.Count(imports.OutcomeUpdated),
		CollectionsSkipped: s.Collections.Count(imports.OutcomeSkipped),
		CollectionsDenied:  s.Collections.Count(imports.OutcomeDenied),
		CollectionsFailed:  s.Collections.Count(imports.OutcomeFailed),
	}
	if s.Errors != nil {
		out.Errors = s.Errors.Error()
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	verb := "Imported into"
	if out.NewApplication {
		verb = "Created"
	}
	fmt.Fprintf(w, "✓ %s: %s application %s\n", path, verb, out.ApplicationID)
	fmt.Fprintf(w, "  pages:              %d created, %d updated, %d denied\n", out.PagesCreated, out.PagesUpdated, out.PagesDenied)
	for _, r := range out.PageRenames {
		fmt.Fprintf(w, "  renamed page:       %s -> %s\n", r.OldName, r.NewName)
	}
	fmt.Fprintf(w, "  action collections: %d created, %d updated, %d skipped, %d denied, %d failed\n",
		out.CollectionsCreated, out.CollectionsUpdated, out.CollectionsSkipped, out.CollectionsDenied, out.CollectionsFailed)
	if out.Errors != "" {
		fmt.Fprintf(w, "  errors:             %s\n", out.Errors)
	}
	return nil
}
