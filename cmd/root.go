package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbosity int
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "face-scan",
	Short: "Capture and analyze facial scans",
	Long: `Face Scan captures a front and a side photo of a face, uploads both to
object storage and measures facial landmarks with a vision model (OpenAI,
Gemini, Ollama or llama.cpp). Results are kept next to the user's workout
routines.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", -1, "Log verbosity (0 info, 1 debug, 2 trace), overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
}

// loadEnv reads path into the environment without overriding variables that
// are already set. A missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
