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
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Inspect and manage face groups of a folder",
}

var groupsListCmd = &cobra.Command{
	Use:   "list <folder>",
	Short: "List the face groups of a scanned folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupsList,
}

var groupsMergeCmd = &cobra.Command{
	Use:   "merge <folder> <dst-group> <src-group>",
	Short: "Merge one face group into another",
	Args:  cobra.ExactArgs(3),
	RunE:  runGroupsMerge,
}

var groupsRenameCmd = &cobra.Command{
	Use:   "rename <folder> <group> <name>",
	Short: "Name a face group",
	Args:  cobra.ExactArgs(3),
	RunE:  runGroupsRename,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsMergeCmd)
	groupsCmd.AddCommand(groupsRenameCmd)

	groupsListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGroupsList(cmd *cobra.Command, args []string) error {
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

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data.Groups)
	}

	if len(data.Groups) == 0 {
		fmt.Println("No face groups. Run scan first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tNAME\tFACES\tREPRESENTATIVE")
	for _, g := range data.Groups {
		name := g.Name
		if name == "" {
			name = "-"
		}
		repImage := "-"
		if rep := data.FaceByID(g.RepresentativeID); rep != nil {
			repImage = rep.ImagePath
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", g.ID, name, len(g.FaceIDs), repImage)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if n := len(data.Unclustered()); n > 0 {
		fmt.Printf("\n%d faces are not in any group\n", n)
	}
	return nil
}

func runGroupsMerge(cmd *cobra.Command, args []string) error {
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

	if !cluster.MergeGroups(data, args[1], args[2]) {
		return fmt.Errorf("group %s or %s not found", args[1], args[2])
	}
	if err := st.SaveFolder(ctx, data); err != nil {
		return fmt.Errorf("saving folder data: %w", err)
	}

	dst := data.GroupByID(args[1])
	fmt.Printf("Merged %s into %s (%d faces)\n", args[2], args[1], len(dst.FaceIDs))
	return nil
}

func runGroupsRename(cmd *cobra.Command, args []string) error {
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

	if !cluster.RenameGroup(data, args[1], args[2]) {
		return fmt.Errorf("group %s not found", args[1])
	}
	if err := st.SaveFolder(ctx, data); err != nil {
		return fmt.Errorf("saving folder data: %w", err)
	}

	fmt.Printf("Group %s is now %q\n", args[1], args[2])
	return nil
}
