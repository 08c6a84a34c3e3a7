package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/routines"
)

var routinesCmd = &cobra.Command{
	Use:   "routines",
	Short: "Manage workout routines",
	Long:  `List, add, delete and seed the workout routines kept in the local preference store.`,
}

var routinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all routines",
	Args:  cobra.NoArgs,
	RunE:  runRoutinesList,
}

var routinesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a routine",
	Example: `  face-scan routines add --title "Evening" \
    --exercise "Pull-ups:4:8:Full range" --exercise "Plank:3:1"`,
	Args: cobra.NoArgs,
	RunE: runRoutinesAdd,
}

var routinesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete every routine with the given ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoutinesDelete,
}

var routinesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the built-in routines if none are stored yet",
	Args:  cobra.NoArgs,
	RunE:  runRoutinesSeed,
}

func init() {
	rootCmd.AddCommand(routinesCmd)
	routinesCmd.AddCommand(routinesListCmd, routinesAddCmd, routinesDeleteCmd, routinesSeedCmd)

	routinesListCmd.Flags().Bool("json", false, "Output as JSON")

	routinesAddCmd.Flags().String("title", "", "Routine title")
	routinesAddCmd.Flags().String("description", "", "Routine description")
	routinesAddCmd.Flags().StringArray("exercise", nil, "Exercise as name:sets:reps[:description], repeatable")
	_ = routinesAddCmd.MarkFlagRequired("title")
}

// parseExercise parses name:sets:reps[:description]. Exercise IDs are their
// 1-based position in the routine.
func parseExercise(position int, raw string) (routines.Exercise, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return routines.Exercise{}, fmt.Errorf("exercise %q: expected name:sets:reps[:description]", raw)
	}
	sets, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || sets < 0 {
		return routines.Exercise{}, fmt.Errorf("exercise %q: invalid sets %q", raw, parts[1])
	}
	reps, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || reps < 0 {
		return routines.Exercise{}, fmt.Errorf("exercise %q: invalid reps %q", raw, parts[2])
	}

	exercise := routines.Exercise{
		ID:   strconv.Itoa(position),
		Name: strings.TrimSpace(parts[0]),
		Sets: sets,
		Reps: reps,
	}
	if len(parts) == 4 {
		exercise.Description = strings.TrimSpace(parts[3])
	}
	if exercise.Name == "" {
		return routines.Exercise{}, fmt.Errorf("exercise %q: name is required", raw)
	}
	return exercise, nil
}

func withRoutines(fn func(ctx context.Context, repo *routines.Repository) error) error {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	store, repo, err := openRoutines(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(context.Background(), repo)
}

func runRoutinesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withRoutines(func(ctx context.Context, repo *routines.Repository) error {
		list, err := repo.Snapshot(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list) == 0 {
			fmt.Println("No routines found. Run 'face-scan routines seed' to add the built-in ones.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tEXERCISES")
		fmt.Fprintln(w, "--\t-----\t---------")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.ID, r.Title, len(r.Exercises))
		}
		return w.Flush()
	})
}

func runRoutinesAdd(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(mustGetString(cmd, "title"))
	if title == "" {
		return fmt.Errorf("--title must not be empty")
	}

	var exercises []routines.Exercise
	for i, raw := range mustGetStringArray(cmd, "exercise") {
		exercise, err := parseExercise(i+1, raw)
		if err != nil {
			return err
		}
		exercises = append(exercises, exercise)
	}

	return withRoutines(func(ctx context.Context, repo *routines.Repository) error {
		routine, err := repo.Create(ctx, title, mustGetString(cmd, "description"), exercises)
		if err != nil {
			return err
		}
		fmt.Printf("Added routine %s (%s) with %d exercises\n", routine.ID, routine.Title, len(routine.Exercises))
		return nil
	})
}

func runRoutinesDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withRoutines(func(ctx context.Context, repo *routines.Repository) error {
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted routine %s\n", id)
		return nil
	})
}

func runRoutinesSeed(cmd *cobra.Command, args []string) error {
	return withRoutines(func(ctx context.Context, repo *routines.Repository) error {
		seeded, err := repo.SeedDefaults(ctx)
		if err != nil {
			return err
		}
		if !seeded {
			fmt.Println("Routines already stored, nothing seeded.")
			return nil
		}
		fmt.Println("Stored the built-in routines.")
		return nil
	})
}
