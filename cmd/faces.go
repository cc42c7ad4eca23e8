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
	"github.com/kozaktomas/face-organizer/internal/store"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Inspect detected faces",
}

var facesSimilarCmd = &cobra.Command{
	Use:   "similar <folder> <face-or-group-id>",
	Short: "Find the stored faces nearest to a face",
	Long: `Search the folder's stored faces by embedding distance to the given
face (or a group's representative face), nearest first. Requires the
postgres driver; the query face itself appears at distance zero.`,
	Args: cobra.ExactArgs(2),
	RunE: runFacesSimilar,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesSimilarCmd)

	facesSimilarCmd.Flags().Int("limit", 10, "Maximum number of results")
	facesSimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

func runFacesSimilar(cmd *cobra.Command, args []string) error {
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

	searcher, ok := st.(store.SimilaritySearcher)
	if !ok {
		return fmt.Errorf("the %s driver does not support similarity search", cfg.Database.Driver)
	}

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

	vec, err := face.DecodeEmbedding(query.Embedding)
	if err != nil {
		return fmt.Errorf("face %s has no usable embedding: %w", query.ID, err)
	}

	results, err := searcher.FindSimilarFaces(ctx, folder, vec, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("similarity search: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No searchable faces in the folder.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tIMAGE\tGROUP\tDISTANCE")
	for _, sf := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\n", sf.FaceID, sf.ImagePath, sf.GroupID, sf.Distance)
	}
	return w.Flush()
}
