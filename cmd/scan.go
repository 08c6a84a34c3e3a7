package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-scan/internal/capture"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/landmarks"
	"github.com/kozaktomas/face-scan/internal/scan"
	"github.com/kozaktomas/face-scan/internal/storage"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one facial scan from two photo files",
	Long: `Runs a complete scan session with photos read from disk: the front and
side photos are uploaded to object storage, analyzed for facial landmarks and
the result is stored for the user.`,
	Example: `  face-scan scan --front front.jpg --side side.jpg
  face-scan scan --front front.jpg --side side.jpg --user 42 --json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("front", "", "Path to the front face photo")
	scanCmd.Flags().String("side", "", "Path to the side face photo")
	scanCmd.Flags().String("user", "", "User the result is recorded for (defaults to SCAN_DEFAULT_USER)")
	scanCmd.Flags().Duration("timeout", 0, "Upper bound for upload and analysis (defaults to SCAN_PIPELINE_TIMEOUT)")
	scanCmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = scanCmd.MarkFlagRequired("front")
	_ = scanCmd.MarkFlagRequired("side")
}

// scanSteps orders the states shown by the progress bar.
var scanSteps = []scan.Kind{scan.KindCapturingFront, scan.KindCapturingSide, scan.KindProcessing, scan.KindResults}

var scanStepNames = map[scan.Kind]string{
	scan.KindCapturingFront: "Capturing front photo",
	scan.KindCapturingSide:  "Capturing side photo",
	scan.KindProcessing:     "Uploading and analyzing",
	scan.KindResults:        "Done",
}

// trackProgress moves the bar along with the controller's state events until
// the channel is closed.
func trackProgress(events <-chan scan.Event, bar *progressbar.ProgressBar) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			if bar == nil || event.Type != scan.EventState || event.State == nil {
				continue
			}
			step := slices.Index(scanSteps, event.State.Kind)
			if step < 0 {
				continue
			}
			bar.Describe(scanStepNames[event.State.Kind])
			_ = bar.Set(step)
		}
	}()
	return done
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := openResultBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer results.Close()

	analyzer, err := landmarks.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	objects, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create object storage: %w", err)
	}

	userID := mustGetString(cmd, "user")
	if userID == "" {
		userID = cfg.Scan.DefaultUserID
	}
	timeout := mustGetDuration(cmd, "timeout")
	if timeout <= 0 {
		timeout = cfg.Scan.PipelineTimeout
	}

	ctrl := scan.NewController(
		capture.NewFile(mustGetString(cmd, "front"), mustGetString(cmd, "side")),
		objects, analyzer, results.Results,
		scan.Options{UserID: userID, PipelineTimeout: timeout, Logger: log.WithName("scan")},
	)
	defer ctrl.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(scanSteps)-1,
			progressbar.OptionSetDescription("Starting scan"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}
	events := ctrl.Subscribe()
	progressDone := trackProgress(events, bar)

	state, err := runScanSession(ctx, ctrl)
	ctrl.Unsubscribe(events)
	<-progressDone
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if state.Kind != scan.KindResults || state.Result == nil {
		return fmt.Errorf("scan failed: %s", state.Message)
	}

	if tracker, ok := analyzer.(interface{ Usage() landmarks.Usage }); ok && !jsonOutput {
		usage := tracker.Usage()
		fmt.Printf("Analyzer %s: %d input tokens, %d output tokens, $%.4f\n",
			analyzer.Name(), usage.InputTokens, usage.OutputTokens, usage.TotalCost)
	}

	return printScanResult(*state.Result, jsonOutput)
}

// runScanSession walks the controller through both captures and waits for the pipeline.
func runScanSession(ctx context.Context, ctrl *scan.Controller) (scan.State, error) {
	if err := ctrl.Start(ctx); err != nil {
		return scan.State{}, fmt.Errorf("failed to start scan: %w", err)
	}
	for range 2 {
		if err := ctrl.Capture(ctx); err != nil {
			var stageErr *scan.StageError
			if errors.As(err, &stageErr) {
				return ctrl.State(), nil
			}
			return scan.State{}, fmt.Errorf("failed to capture photo: %w", err)
		}
	}

	waitDone := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		if err := ctrl.Reset(context.Background()); err != nil {
			return scan.State{}, err
		}
		return scan.State{}, fmt.Errorf("scan interrupted: %w", ctx.Err())
	}
	return ctrl.State(), nil
}

func printScanResult(result database.ScanResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Scan %s for user %s at %s\n", result.ID, result.UserID, result.CapturedAt().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Front: %s\n", result.FrontFaceURL)
	fmt.Printf("  Side:  %s\n\n", result.SideFaceURL)

	names := make([]string, 0, len(result.Landmarks))
	for name := range result.Landmarks {
		names = append(names, name)
	}
	slices.Sort(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEASUREMENT\tVALUE")
	fmt.Fprintln(w, "-----------\t-----")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.1f\n", name, result.Landmarks[name])
	}
	return w.Flush()
}
