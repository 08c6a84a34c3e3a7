package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-scan/internal/landmarks"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuiltAt   string   `json:"built_at"`
	GoVersion string   `json:"go_version"`
	Analyzers []string `json:"analyzers"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build and analyzer information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := versionInfo{
		Version:   Version,
		Commit:    CommitSHA,
		BuiltAt:   BuildDate,
		GoVersion: runtime.Version(),
		Analyzers: landmarks.Names(),
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "face-scan\t%s\n", info.Version)
	fmt.Fprintf(w, "Commit:\t%s\n", info.Commit)
	fmt.Fprintf(w, "Built:\t%s\n", info.BuiltAt)
	fmt.Fprintf(w, "Go:\t%s\n", info.GoVersion)
	fmt.Fprintf(w, "Analyzers:\t%v\n", info.Analyzers)
	return w.Flush()
}
