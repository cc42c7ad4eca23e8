package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/config"
)

var exportCmd = &cobra.Command{
	Use:   "export <archive.zip>",
	Short: "Export the known-person roster to a zip archive",
	Long: `Write the whole roster (people, reference embeddings, thumbnails)
to a zip archive that can be imported on another installation.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	people, ts, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	if err := people.Export(f, ts); err != nil {
		return fmt.Errorf("exporting roster: %w", err)
	}

	fmt.Printf("Exported %d people (%d embeddings) to %s\n",
		people.Count(), people.EmbeddingCount(), args[0])
	return nil
}
