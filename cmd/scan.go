package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/cluster"
	"github.com/kozaktomas/face-organizer/internal/config"
	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/perception"
	"github.com/kozaktomas/face-organizer/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Detect and cluster faces in a photo folder",
	Long: `Scan a photo folder with the face detection service and group the
detected faces into per-person clusters.

Scanning is incremental: files that were already processed are skipped, and
new faces are first assigned to existing groups before any new groups are
formed. Groups whose representative face matches a known person confidently
are named automatically.

Examples:
  # Scan a folder with the configured defaults
  face-organizer scan /photos/wedding

  # Re-process everything from scratch
  face-organizer scan /photos/wedding --rescan

  # Try a different clustering strategy
  face-organizer scan /photos/wedding --strategy chinese_whispers`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("rescan", false, "Discard stored results and process every file again")
	scanCmd.Flags().String("strategy", "", "Clustering strategy override (hierarchical_average, hierarchical_median, chinese_whispers, two_pass)")
	scanCmd.Flags().Float64("threshold", 0, "Clustering distance threshold override")
	scanCmd.Flags().Bool("no-auto-name", false, "Skip naming groups from the known-person roster")
}

// imageFile reports whether the path looks like a supported photo.
func imageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".gif":
		return true
	}
	return false
}

func listImages(folder string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking folder: %w", err)
	}
	return files, nil
}

func runScan(cmd *cobra.Command, args []string) error {
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
	if mustGetBool(cmd, "rescan") {
		data = &face.FolderFaceData{Folder: folder}
	}

	mode := face.RecognitionMode(cfg.Perception.Mode)
	client := perception.New(cfg.Perception.URL, mode)
	if !client.Healthy(ctx) {
		return fmt.Errorf("face detection service is not reachable (PERCEPTION_URL=%q)", cfg.Perception.URL)
	}

	files, err := listImages(folder)
	if err != nil {
		return err
	}

	var pending []string
	for _, f := range files {
		if !data.IsScanned(f) {
			pending = append(pending, f)
		}
	}
	fmt.Printf("Found %d photos, %d not scanned yet\n", len(files), len(pending))

	newStart := len(data.Faces)
	detectErrors := 0

	if len(pending) > 0 {
		bar := progressbar.NewOptions(len(pending),
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)

		for _, path := range pending {
			imageData, err := os.ReadFile(path)
			if err != nil {
				detectErrors++
				_ = bar.Add(1)
				continue
			}
			faces, err := client.DetectFaces(ctx, path, imageData)
			if err != nil {
				detectErrors++
				_ = bar.Add(1)
				continue
			}
			data.Faces = append(data.Faces, faces...)
			data.ScannedFiles = append(data.ScannedFiles, face.ScannedFile{
				Path:      path,
				FaceCount: len(faces),
				ScannedAt: time.Now().UTC(),
			})
			_ = bar.Add(1)
		}
		fmt.Println()
	}

	opts := cfg.ClusterOptions(mode)
	if s := mustGetString(cmd, "strategy"); s != "" {
		opts.Strategy = cluster.Strategy(s)
	}
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		opts.Threshold = t
	}

	newFaces := make([]*face.DetectedFace, 0, len(data.Faces)-newStart)
	for i := newStart; i < len(data.Faces); i++ {
		newFaces = append(newFaces, &data.Faces[i])
	}

	cache := face.NewCache()
	leftovers, err := cluster.AssignToGroups(ctx, data, newFaces, opts, cache)
	if err != nil {
		return fmt.Errorf("assigning faces to existing groups: %w", err)
	}
	assigned := len(newFaces) - len(leftovers)

	groups, err := cluster.Run(ctx, leftovers, opts, cache)
	if err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	data.Groups = append(data.Groups, groups...)

	named := 0
	if !mustGetBool(cmd, "no-auto-name") {
		named, err = autoNameGroups(ctx, st, cfg, data)
		if err != nil {
			return err
		}
	}

	if err := st.SaveFolder(ctx, data); err != nil {
		return fmt.Errorf("saving folder data: %w", err)
	}

	fmt.Printf("Detected %d new faces (%d errors)\n", len(newFaces), detectErrors)
	fmt.Printf("Assigned %d to existing groups, formed %d new groups\n", assigned, len(groups))
	fmt.Printf("Folder now has %d groups over %d faces", len(data.Groups), len(data.Faces))
	if named > 0 {
		fmt.Printf(", %d groups named from the roster", named)
	}
	fmt.Println()
	return nil
}

// autoNameGroups names unnamed groups whose representative face matches a
// known person confidently.
func autoNameGroups(ctx context.Context, st store.Store, cfg *config.Config, data *face.FolderFaceData) (int, error) {
	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return 0, err
	}
	if people.Count() == 0 {
		return 0, nil
	}

	policy := cfg.AutoMatchPolicy()
	named := 0
	for i := range data.Groups {
		g := &data.Groups[i]
		if g.Name != "" {
			continue
		}
		rep := data.FaceByID(g.RepresentativeID)
		if rep == nil {
			continue
		}
		if m := people.BestAutoMatch(rep.Embedding, policy); m != nil {
			g.Name = m.Name
			named++
		}
	}
	return named, nil
}
