package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-scan/internal/constants"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/logging"
	"github.com/kozaktomas/face-scan/internal/metrics"
)

// Pipeline outcomes recorded in metrics.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

// Options configure a Controller. Zero values fall back to defaults.
type Options struct {
	UserID          string        // recorded on results, defaults to current_user
	PipelineTimeout time.Duration // bounds upload + analyze + persist, defaults to 2 minutes
	Logger          logr.Logger
	Now             func() time.Time
	NewID           func() string
}

// Controller drives one scan session through capture, upload, analysis and persistence.
// It is safe for concurrent use; at most one pipeline is in flight at any time.
type Controller struct {
	capturer Capturer
	storage  ObjectStorage
	analyzer Analyzer
	store    ResultStore

	userID  string
	timeout time.Duration
	log     logr.Logger
	now     func() time.Time
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes transitions, including the wait for an abandoned pipeline.
	// The pipeline goroutine only takes mu.
	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	generation uint64
	front      []byte
	side       []byte
	current    *database.ScanResult
	history    []database.ScanResult
	closed     bool

	pipelineCancel context.CancelFunc
	pipelineDone   chan struct{}

	events broadcaster
}

// NewController creates a controller in the Idle state.
func NewController(capturer Capturer, storage ObjectStorage, analyzer Analyzer, store ResultStore, opts Options) *Controller {
	if opts.UserID == "" {
		opts.UserID = constants.DefaultUserID
	}
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = 2 * time.Minute
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		capturer: capturer,
		storage:  storage,
		analyzer: analyzer,
		store:    store,
		userID:   opts.UserID,
		timeout:  opts.PipelineTimeout,
		log:      opts.Logger.WithValues("user", opts.UserID),
		now:      opts.Now,
		newID:    opts.NewID,
		ctx:      ctx,
		cancel:   cancel,
		state:    idleState(),
	}
}

// UserID returns the user results are recorded for.
func (c *Controller) UserID() string {
	return c.userID
}

// Capturer returns the capture device the controller takes photos from.
func (c *Controller) Capturer() Capturer {
	return c.capturer
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentResult returns the result shown in the Results state, or nil.
func (c *Controller) CurrentResult() *database.ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	r := *c.current
	return &r
}

// History returns a copy of the in-memory history, newest first.
func (c *Controller) History() []database.ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]database.ScanResult, len(c.history))
	copy(history, c.history)
	return history
}

// Subscribe returns a channel receiving every state and history change.
// The channel is closed by Unsubscribe or Close.
func (c *Controller) Subscribe() chan Event {
	return c.events.addListener()
}

// Unsubscribe stops delivery to a channel returned by Subscribe.
func (c *Controller) Unsubscribe(ch chan Event) {
	c.events.removeListener(ch)
}

// Start begins a new session: clears cached photos, result and error,
// enters CapturingFront and starts the capture device.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrPipelineInFlight
	}
	// A finished pipeline may still be refreshing history.
	if done := c.cancelPipelineLocked(); done != nil {
		c.mu.Unlock()
		<-done
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
	}
	c.clearLocked()
	c.setStateLocked(State{Kind: KindCapturingFront})
	c.mu.Unlock()

	c.log.V(logging.DEBUG).Info("Scan session started")

	if err := c.capturer.StartCapture(ctx); err != nil {
		stageErr := &StageError{Stage: StageCapture, Err: err}
		c.mu.Lock()
		c.setStateLocked(errorState(UserMessage(stageErr)))
		c.mu.Unlock()
		return stageErr
	}
	return nil
}

// Capture asks the capture device for the photo the current state waits for.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	kind, gen, closed := c.state.Kind, c.generation, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if kind == KindProcessing {
		return ErrPipelineInFlight
	}
	pose, ok := kind.pose()
	if !ok {
		return fmt.Errorf("capture in state %s: %w", kind, ErrInvalidTransition)
	}

	data, err := c.capturer.CapturePhoto(ctx, pose)
	return c.accept(ctx, gen, pose, data, err)
}

// SubmitImage hands over a photo taken outside the controller's capture device.
func (c *Controller) SubmitImage(ctx context.Context, data []byte) error {
	c.mu.Lock()
	kind, gen, closed := c.state.Kind, c.generation, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if kind == KindProcessing {
		return ErrPipelineInFlight
	}
	pose, ok := kind.pose()
	if !ok {
		return fmt.Errorf("submit image in state %s: %w", kind, ErrInvalidTransition)
	}
	return c.accept(ctx, gen, pose, data, nil)
}

// accept applies a capture outcome if the state did not move since gen.
func (c *Controller) accept(ctx context.Context, gen uint64, pose Pose, data []byte, captureErr error) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.generation != gen {
		c.mu.Unlock()
		return fmt.Errorf("%s photo arrived after the session moved on: %w", pose, ErrInvalidTransition)
	}

	if captureErr != nil || len(data) == 0 {
		if captureErr == nil {
			captureErr = errNoImage
		}
		stageErr := &StageError{Stage: StageCapture, Err: captureErr}
		c.setStateLocked(errorState(UserMessage(stageErr)))
		c.mu.Unlock()
		c.stopCapture(ctx)
		c.log.Info("Photo capture failed", "pose", pose, "error", captureErr.Error())
		return stageErr
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	if pose == PoseFront {
		c.front = buf
		c.setStateLocked(State{Kind: KindCapturingSide})
		c.mu.Unlock()
		return nil
	}

	c.side = buf
	c.setStateLocked(State{Kind: KindProcessing})
	c.launchLocked()
	c.mu.Unlock()

	c.stopCapture(ctx)
	return nil
}

// Reset abandons any in-flight pipeline and returns to Idle with everything cleared.
func (c *Controller) Reset(ctx context.Context) error {
	return c.abandonTo(ctx, func() (State, error) {
		c.clearLocked()
		return idleState(), nil
	})
}

// Select shows an existing result without uploading anything.
func (c *Controller) Select(ctx context.Context, result database.ScanResult) error {
	return c.abandonTo(ctx, func() (State, error) {
		c.current = &result
		return resultsState(result), nil
	})
}

// SelectByID selects a result from the in-memory history.
func (c *Controller) SelectByID(ctx context.Context, id string) error {
	return c.abandonTo(ctx, func() (State, error) {
		for _, r := range c.history {
			if r.ID == id {
				c.current = &r
				return resultsState(r), nil
			}
		}
		return State{}, fmt.Errorf("select %s: %w", id, ErrNotFound)
	})
}

// ShowHistory switches to the History state.
func (c *Controller) ShowHistory(ctx context.Context) error {
	return c.abandonTo(ctx, func() (State, error) {
		return State{Kind: KindHistory}, nil
	})
}

// Fail records an error reported by the client, such as a denied camera permission.
func (c *Controller) Fail(ctx context.Context, message string) error {
	return c.abandonTo(ctx, func() (State, error) {
		return errorState(UserMessage(errors.New(message))), nil
	})
}

// abandonTo applies the transition computed by next. A running pipeline, including
// one past Results that is still refreshing history, is cancelled and waited for.
// next runs with mu held.
func (c *Controller) abandonTo(ctx context.Context, next func() (State, error)) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	state, err := next()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	wasCapturing := c.state.Capturing()
	done := c.cancelPipelineLocked()
	c.setStateLocked(state)
	c.mu.Unlock()

	if wasCapturing {
		c.stopCapture(ctx)
	}
	if done != nil {
		<-done
	}
	return nil
}

// LoadHistory replaces the in-memory history with the stored results of this user.
func (c *Controller) LoadHistory(ctx context.Context) error {
	history, err := c.store.ListRecent(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("load scan history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = history
	c.events.send(Event{Type: EventHistory, History: history})
	return nil
}

// Wait blocks until no pipeline is running.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.pipelineDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close abandons any work in flight and closes all subscriber channels.
// Every transition after Close returns ErrClosed.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasCapturing := c.state.Capturing()
	done := c.cancelPipelineLocked()
	c.generation++
	c.mu.Unlock()

	c.cancel()
	if wasCapturing {
		c.stopCapture(context.Background())
	}
	if done != nil {
		<-done
	}
	c.events.close()
	return nil
}

func (c *Controller) clearLocked() {
	c.front = nil
	c.side = nil
	c.current = nil
}

// setStateLocked installs a new state and publishes it. Every state change
// bumps the generation so stale captures and pipelines can detect it.
func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.generation++
	snapshot := s
	c.events.send(Event{Type: EventState, State: &snapshot})
}

// cancelPipelineLocked cancels the running pipeline and returns its done channel.
func (c *Controller) cancelPipelineLocked() chan struct{} {
	if c.pipelineCancel == nil {
		return nil
	}
	c.pipelineCancel()
	return c.pipelineDone
}

func (c *Controller) stopCapture(ctx context.Context) {
	if err := c.capturer.StopCapture(ctx); err != nil {
		c.log.Error(err, "Failed to stop capture device")
	}
}

// launchLocked starts the pipeline goroutine for the cached photos.
func (c *Controller) launchLocked() {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	ctx = logging.IntoContext(ctx, c.log)
	done := make(chan struct{})
	c.pipelineCancel = cancel
	c.pipelineDone = done

	gen := c.generation
	front, side := c.front, c.side

	go func() {
		defer close(done)
		defer cancel()
		c.runPipeline(ctx, gen, front, side)

		c.mu.Lock()
		if c.pipelineDone == done {
			c.pipelineCancel = nil
			c.pipelineDone = nil
		}
		c.mu.Unlock()
	}()
}

func (c *Controller) runPipeline(ctx context.Context, gen uint64, front, side []byte) {
	result, err := c.execute(ctx, front, side)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		metrics.RecordScanOutcome(outcomeAbandoned)
		c.log.V(logging.DEBUG).Info("Abandoned scan pipeline finished")
		return
	}
	if err != nil {
		c.setStateLocked(errorState(UserMessage(err)))
		c.mu.Unlock()
		metrics.RecordScanOutcome(outcomeFailed)
		c.log.Error(err, "Scan pipeline failed")
		return
	}
	c.current = &result
	c.setStateLocked(resultsState(result))
	gen = c.generation
	c.mu.Unlock()

	metrics.RecordScanOutcome(outcomeCompleted)
	c.log.Info("Scan completed", "id", result.ID, "measurements", len(result.Landmarks))

	c.refreshHistory(ctx, gen)
}

// execute uploads both photos, analyzes them and persists the result.
func (c *Controller) execute(ctx context.Context, front, side []byte) (database.ScanResult, error) {
	started := time.Now()
	frontURL, sideURL, err := c.uploadPhotos(ctx, front, side)
	metrics.RecordStageDuration(string(StageUpload), time.Since(started))
	if err != nil {
		return database.ScanResult{}, err
	}

	started = time.Now()
	landmarks, err := c.analyzer.Analyze(ctx, front, side)
	metrics.RecordStageDuration(string(StageAnalyze), time.Since(started))
	if err != nil {
		return database.ScanResult{}, &StageError{Stage: StageAnalyze, Err: err}
	}
	if len(landmarks) == 0 {
		return database.ScanResult{}, &StageError{Stage: StageAnalyze, Err: errEmptyAnalysis}
	}

	result := database.ScanResult{
		ID:           c.newID(),
		UserID:       c.userID,
		FrontFaceURL: frontURL,
		SideFaceURL:  sideURL,
		Landmarks:    landmarks,
		Timestamp:    c.now().UnixMilli(),
	}

	started = time.Now()
	err = c.store.Insert(ctx, result)
	metrics.RecordStageDuration(string(StagePersist), time.Since(started))
	if err != nil {
		return database.ScanResult{}, &StageError{Stage: StagePersist, Err: err}
	}
	return result, nil
}

// uploadPhotos uploads both photos concurrently and resolves their public URLs.
func (c *Controller) uploadPhotos(ctx context.Context, front, side []byte) (string, string, error) {
	var frontURL, sideURL string
	stamp := c.now().UnixMilli()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := c.upload(gctx, stamp, PoseFront, front)
		frontURL = url
		return err
	})
	g.Go(func() error {
		url, err := c.upload(gctx, stamp, PoseSide, side)
		sideURL = url
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", &StageError{Stage: StageUpload, Err: err}
	}
	if frontURL == "" || sideURL == "" {
		return "", "", &StageError{Stage: StageUpload, Err: errUploadFailed}
	}
	return frontURL, sideURL, nil
}

func (c *Controller) upload(ctx context.Context, stamp int64, pose Pose, data []byte) (string, error) {
	key := ObjectKey(stamp, pose)
	if err := c.storage.Upload(ctx, key, data); err != nil {
		return "", fmt.Errorf("upload %s photo: %w", pose, err)
	}
	return c.storage.PublicURL(key), nil
}

// ObjectKey names an uploaded photo: capture time, a random suffix and the pose.
func ObjectKey(stamp int64, pose Pose) string {
	return fmt.Sprintf("%d_%s_%s.jpg", stamp, uuid.NewString()[:8], pose)
}

// refreshHistory reloads history after a completed scan. A failure leaves the
// state untouched, and the list is dropped when the session moved past gen.
func (c *Controller) refreshHistory(ctx context.Context, gen uint64) {
	history, err := c.store.ListRecent(ctx, c.userID)
	if err != nil {
		if ctx.Err() != nil {
			c.log.V(logging.DEBUG).Info("History refresh abandoned")
			return
		}
		metrics.RecordHistoryRefreshFailure()
		c.log.Error(err, "Failed to load scan history")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.generation != gen {
		return
	}
	c.history = history
	c.events.send(Event{Type: EventHistory, History: history})
}
