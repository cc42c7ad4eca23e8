package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-organizer",
	Short: "A CLI tool for grouping and naming faces in photo folders",
	Long: `Face Organizer scans photo folders with a face detection service,
clusters the detected faces into per-person groups, and matches the groups
against a roster of known people so recurring subjects get named
automatically.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
