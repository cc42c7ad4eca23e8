package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/cluster"
	"github.com/kozaktomas/face-organizer/internal/config"
	"github.com/kozaktomas/face-organizer/internal/face"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <folder>",
	Short: "Suggest face groups that may belong to the same person",
	Long: `Score all group pairs of a folder and list the ones that narrowly
missed the clustering threshold. These pairs are good candidates for a
manual 'groups merge'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().Float64("margin", 0, "Suggestion band width above the threshold override")
	suggestCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	folder, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving folder: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.LoadFolder(ctx, folder)
	if err != nil {
		return fmt.Errorf("loading folder data: %w", err)
	}

	mode := face.RecognitionMode(cfg.Perception.Mode)
	if len(data.Faces) > 0 && data.Faces[0].Mode != "" {
		mode = data.Faces[0].Mode
	}
	opts := cfg.ClusterOptions(mode)
	if m := mustGetFloat64(cmd, "margin"); m > 0 {
		opts.Margin = m
	}

	suggestions, err := cluster.Suggestions(data, opts, nil)
	if err != nil {
		return fmt.Errorf("scoring suggestions: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(suggestions)
	}

	if len(suggestions) == 0 {
		fmt.Println("No merge suggestions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP A\tGROUP B\tSIMILARITY")
	for _, s := range suggestions {
		fmt.Fprintf(w, "%s\t%s\t%.3f\n", s.GroupA, s.GroupB, s.Similarity)
	}
	return w.Flush()
}
