package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quizbee-service/internal/catalog"
	"quizbee-service/internal/config"
	"quizbee-service/internal/domain"
	pgstore "quizbee-service/internal/infra/postgres"
)

// NewCatalogCmd groups content maintenance commands.
func NewCatalogCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and import question content",
	}
	cmd.AddCommand(newCatalogValidateCmd(configPath))
	cmd.AddCommand(newCatalogImportCmd(configPath))
	return cmd
}

func newCatalogValidateCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a content directory and report pool sizes per subtopic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Catalog.Dir
			}
			return validateCatalog(cmd.Context(), os.DirFS(dir), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "content directory (defaults to catalog.dir)")
	return cmd
}

func validateCatalog(ctx context.Context, fsys fs.FS, out io.Writer) error {
	cat := catalog.New(catalog.NewFSLoader(fsys))
	if err := cat.Reload(ctx); err != nil {
		return err
	}
	snap, err := cat.Snapshot(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tSUBTOPIC\tELIMINATION\tEASY\tAVERAGE\tDIFFICULT")
	for _, topic := range snap.Topics() {
		for _, st := range topic.Subtopics {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", topic.ID, st.ID,
				snap.EliminationCount(st.ID),
				snap.FinalsCount(st.ID, domain.DifficultyEasy),
				snap.FinalsCount(st.ID, domain.DifficultyAverage),
				snap.FinalsCount(st.ID, domain.DifficultyDifficult))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d questions in %d topics\n", snap.QuestionCount(), len(snap.Topics()))
	for _, tier := range domain.Difficulties {
		if n := snap.FinalsCount("", tier); n < catalog.FinalsPerTier {
			fmt.Fprintf(out, "warning: only %d %s finals questions, a full finals round needs %d\n",
				n, tier, catalog.FinalsPerTier)
		}
	}
	return nil
}

func newCatalogImportCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a content directory into Postgres for catalog.source=postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if dir == "" {
				dir = cfg.Catalog.Dir
			}

			db := pgstore.Open(cfg.Postgres.URL)
			defer db.Close()
			if err := pgstore.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			topics, sets, err := pgstore.ImportFS(cmd.Context(), db, os.DirFS(dir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d topics and %d question sets\n", topics, sets)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "content directory (defaults to catalog.dir)")
	return cmd
}
