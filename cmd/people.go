package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-organizer/internal/config"
	"github.com/kozaktomas/face-organizer/internal/roster"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Manage the known-person roster",
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known people",
	Args:  cobra.NoArgs,
	RunE:  runPeopleList,
}

var peopleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a known person",
	Long: `Add a person to the roster. With --folder and --from-group the
embeddings of that face group become the person's reference embeddings; when
the person already exists (same normalized name or a matching face), the
embeddings are appended to the existing record instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPeopleAdd,
}

var peopleMergeCmd = &cobra.Command{
	Use:   "merge <src-person> <dst-person>",
	Short: "Merge one person into another",
	Args:  cobra.ExactArgs(2),
	RunE:  runPeopleMerge,
}

var peopleRemoveCmd = &cobra.Command{
	Use:   "remove <person>",
	Short: "Remove a person from the roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleRemove,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.AddCommand(peopleListCmd)
	peopleCmd.AddCommand(peopleAddCmd)
	peopleCmd.AddCommand(peopleMergeCmd)
	peopleCmd.AddCommand(peopleRemoveCmd)

	peopleListCmd.Flags().Bool("json", false, "Output as JSON")

	peopleAddCmd.Flags().String("role", "", "Role of the person (bride, groom, family, ...)")
	peopleAddCmd.Flags().String("folder", "", "Folder holding the reference face group")
	peopleAddCmd.Flags().String("from-group", "", "Face group whose embeddings become the reference")
}

func runPeopleList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(people.People())
	}

	if people.Count() == 0 {
		fmt.Println("The roster is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON\tNAME\tROLE\tEMBEDDINGS")
	for _, p := range people.People() {
		role := p.Role
		if role == "" {
			role = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Name, role, len(p.Embeddings))
	}
	return w.Flush()
}

func runPeopleAdd(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	name := args[0]
	role := mustGetString(cmd, "role")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	var embeddings []roster.PersonEmbedding
	if groupID := mustGetString(cmd, "from-group"); groupID != "" {
		folderArg := mustGetString(cmd, "folder")
		if folderArg == "" {
			return fmt.Errorf("--from-group requires --folder")
		}
		folder, err := filepath.Abs(folderArg)
		if err != nil {
			return fmt.Errorf("resolving folder: %w", err)
		}
		data, err := st.LoadFolder(ctx, folder)
		if err != nil {
			return fmt.Errorf("loading folder data: %w", err)
		}
		g := data.GroupByID(groupID)
		if g == nil {
			return fmt.Errorf("group %s not found in %s", groupID, folder)
		}
		for _, f := range data.GroupFaces(g) {
			embeddings = append(embeddings, roster.PersonEmbedding{
				Embedding: f.Embedding,
				Source:    f.ImagePath,
				Mode:      f.Mode,
			})
		}
	}

	threshold := cfg.AutoMatchPolicy().Threshold
	id, created := people.AddOrMergePerson(name, role, embeddings, threshold)
	if err := st.SavePeople(ctx, people.People()); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}

	if created {
		fmt.Printf("Added %s (%s) with %d embeddings\n", name, id, len(embeddings))
	} else {
		fmt.Printf("Merged into existing person %s\n", id)
	}
	return nil
}

func runPeopleMerge(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	moved, ok := people.MergePeople(args[0], args[1])
	if !ok {
		return fmt.Errorf("person %s or %s not found", args[0], args[1])
	}
	if err := st.SavePeople(ctx, people.People()); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}

	fmt.Printf("Merged %s into %s, moved %d embeddings\n", args[0], args[1], moved)
	return nil
}

func runPeopleRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	people, _, err := loadRoster(ctx, st, cfg)
	if err != nil {
		return err
	}

	if !people.RemovePerson(args[0]) {
		return fmt.Errorf("person %s not found", args[0])
	}
	if err := st.SavePeople(ctx, people.People()); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}

	fmt.Printf("Removed %s\n", args[0])
	return nil
}
