package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/config"
)

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Import a known-person roster archive",
	Long: `Add the people from an exported archive to this installation's
roster. Imported people are always appended; use 'people merge' afterwards
to fold duplicates together.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
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

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	added, err := people.ImportArchive(f, info.Size(), ts)
	if err != nil {
		return fmt.Errorf("importing roster: %w", err)
	}
	if err := st.SavePeople(ctx, people.People()); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}

	fmt.Printf("Imported %d people, roster now has %d\n", added, people.Count())
	return nil
}
