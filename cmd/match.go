package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/config"
	"github.com/kozaktomas/face-organizer/internal/face"
)

var matchCmd = &cobra.Command{
	Use:   "match <folder> <face-or-group-id>",
	Short: "Match a face or group against the known-person roster",
	Long: `Compare a detected face (or a group's representative face) against
every known person and list the candidates within the match threshold,
best first.`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a match override")
	matchCmd.Flags().Int("limit", 5, "Maximum number of candidates")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatch(cmd *cobra.Command, args []string) error {
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

	// A group id resolves to its representative face.
	var query *face.DetectedFace
	if g := data.GroupByID(args[1]); g != nil {
		query = data.FaceByID(g.RepresentativeID)
	} else {
		query = data.FaceByID(args[1])
	}
	if query == nil {
		return fmt.Errorf("no face or group %s in %s", args[1], folder)
	}

	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	threshold := cfg.AutoMatchPolicy().Threshold
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		threshold = t
	}

	matches := people.MatchFace(query.Embedding, threshold, mustGetInt(cmd, "limit"))

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("No known person within the threshold.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON\tNAME\tDISTANCE\tCONFIDENCE")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\n", m.PersonID, m.Name, m.Distance, m.Confidence)
	}
	return w.Flush()
}
