package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duychung-keytechx/speech-demo/internal/audio"
	"github.com/duychung-keytechx/speech-demo/internal/capture"
	"github.com/duychung-keytechx/speech-demo/internal/metrics"
	"github.com/duychung-keytechx/speech-demo/internal/transcription"
)

// Client is the remote transcription collaborator: three network operations
// whose failures are fatal to the current session.
type Client interface {
	StartSession(ctx context.Context) (string, error)
	PushChunk(ctx context.Context, sessionID string, samples []float32) (transcription.ChunkResult, error)
	FinishSession(ctx context.Context, sessionID string) (transcription.FinalResult, error)
}

// Config contains session pipeline configuration.
type Config struct {
	TargetRate    int           // fixed delivery sample rate, 16000 Hz
	ChunkDuration time.Duration // fixed chunk duration, 500 ms
	MaxBuffered   time.Duration // segment buffer bound; 0 = unbounded
}

// ChunkLen returns the chunk size in samples at the target rate.
func (c Config) ChunkLen() int {
	return int(float64(c.TargetRate) * c.ChunkDuration.Seconds())
}

// Validate checks the pipeline configuration.
func (c Config) Validate() error {
	if c.TargetRate <= 0 {
		return fmt.Errorf("target_rate must be positive, got %d", c.TargetRate)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %s", c.ChunkDuration)
	}
	if c.ChunkLen() <= 0 {
		return fmt.Errorf("chunk of %s at %d Hz is shorter than one sample", c.ChunkDuration, c.TargetRate)
	}
	if c.MaxBuffered < 0 {
		return fmt.Errorf("max_buffered cannot be negative, got %s", c.MaxBuffered)
	}
	if c.MaxBuffered > 0 && c.MaxBuffered < c.ChunkDuration {
		return fmt.Errorf("max_buffered %s is smaller than one chunk (%s)", c.MaxBuffered, c.ChunkDuration)
	}
	return nil
}

// Controller owns at most one active recording session. It drives the
// capture → resample → buffer → delivery pipeline and is the sole authority
// for state transitions and resource teardown.
type Controller struct {
	config   Config
	client   Client
	source   capture.Source
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer Observer

	buffer *audio.SegmentBuffer
	pump   *deliveryPump

	// opMu serializes Start/Stop; mu guards the fields below.
	opMu sync.Mutex
	mu   sync.Mutex

	state      State
	sessionID  string
	transcript string
	language   string
	lastErr    error
	recording  bool
	startedAt  time.Time

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
	feedDone   chan struct{}
}

// Snapshot is a point-in-time view of the session for display/monitoring.
type Snapshot struct {
	State      string `json:"state"`
	SessionID  string `json:"session_id,omitempty"`
	Transcript string `json:"transcript"`
	Language   string `json:"language,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Buffered   int    `json:"buffered_samples"`
}

// NewController creates a session controller. The observer's callbacks may
// be nil.
func NewController(config Config, client Client, source capture.Source,
	logger *slog.Logger, m *metrics.Metrics, observer Observer) (*Controller, error) {

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	maxSamples := 0
	if config.MaxBuffered > 0 {
		maxSamples = int(float64(config.TargetRate) * config.MaxBuffered.Seconds())
	}

	c := &Controller{
		config:   config,
		client:   client,
		source:   source,
		logger:   logger,
		metrics:  m,
		observer: observer,
		buffer:   audio.NewSegmentBuffer(maxSamples),
		state:    Idle,
	}
	c.pump = newDeliveryPump(c.buffer, config.ChunkLen(), c.deliverChunk, c.fail)

	return c, nil
}

// Start begins a new recording session. Valid from Idle or Error only.
// It resets the previous transcript and buffer, obtains a session id from
// the service, then starts capture wired into the pipeline. Any failure
// transitions to Error with best-effort teardown.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == Recording {
		c.mu.Unlock()
		return fmt.Errorf("cannot start: session already recording")
	}
	c.transcript = ""
	c.language = ""
	c.lastErr = nil
	c.mu.Unlock()
	c.buffer.Reset()
	c.metrics.SetBufferDepth(0)

	sessionID, err := c.client.StartSession(ctx)
	if err != nil {
		err = fmt.Errorf("start session: %w", err)
		c.fail(err)
		return err
	}

	blocks, err := c.source.Start(ctx)
	if err != nil {
		// The remote session id is simply abandoned; the service expires it.
		err = fmt.Errorf("start capture: %w", err)
		c.fail(err)
		return err
	}

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	feedDone := make(chan struct{})

	c.mu.Lock()
	c.sessionID = sessionID
	c.recording = true
	c.startedAt = time.Now()
	c.pumpCtx = pumpCtx
	c.pumpCancel = pumpCancel
	c.feedDone = feedDone
	c.state = Recording
	c.mu.Unlock()

	go c.feed(blocks, feedDone)

	c.metrics.RecordSessionStarted()
	c.logger.Info("Recording session started",
		slog.String("session_id", sessionID),
		slog.Int("source_rate", c.source.SampleRate()),
		slog.Int("target_rate", c.config.TargetRate),
		slog.Int("chunk_samples", c.config.ChunkLen()),
	)
	c.observer.notifyState(Recording)

	return nil
}

// Stop ends the current recording session. Valid from Recording only.
// Capture is torn down first, remaining full chunks are flushed in order,
// then the session is finished to obtain the final transcript. A finish
// failure transitions to Error instead of Idle.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != Recording {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot stop: session is %s", state)
	}
	c.recording = false
	sessionID := c.sessionID
	feedDone := c.feedDone
	startedAt := c.startedAt
	c.mu.Unlock()

	// Teardown failures are logged, never block the transition.
	if err := c.source.Stop(); err != nil {
		c.logger.Warn("Capture teardown failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	<-feedDone

	// Flush: drain remaining full chunks, awaiting any in-flight delivery.
	// A trailing partial chunk stays in the buffer and is discarded below.
	c.pump.Trigger()
	c.pump.Wait()

	c.mu.Lock()
	if c.state == Error {
		// A chunk delivery failed during the flush.
		err := c.lastErr
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	final, err := c.client.FinishSession(ctx, sessionID)
	if err != nil {
		err = fmt.Errorf("finish session: %w", err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.transcript = final.Text
	if final.Language != "" {
		c.language = final.Language
	}
	c.sessionID = ""
	c.pumpCancel()
	c.state = Idle
	language := c.language
	c.mu.Unlock()

	c.buffer.Reset()
	c.metrics.SetBufferDepth(0)
	c.metrics.RecordSessionFinished(time.Since(startedAt).Seconds())

	c.logger.Info("Recording session finished",
		slog.String("session_id", sessionID),
		slog.String("language", language),
		slog.Duration("duration", time.Since(startedAt)),
	)
	c.observer.notifyTranscript(Transcript{Text: final.Text, Language: language, Final: true})
	c.observer.notifyState(Idle)

	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error retained from the last failure, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns a point-in-time view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:      c.state.String(),
		SessionID:  c.sessionID,
		Transcript: c.transcript,
		Language:   c.language,
		Buffered:   c.buffer.Len(),
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

// feed consumes capture blocks until the source closes the channel,
// resampling each block to the target rate, appending it to the segment
// buffer, and nudging the pump. It never blocks on delivery: audio arriving
// while a request is in flight simply accumulates for the next drain.
func (c *Controller) feed(blocks <-chan capture.Block, done chan struct{}) {
	defer close(done)

	srcRate := c.source.SampleRate()
	for block := range blocks {
		resampled := audio.Resample(block, srcRate, c.config.TargetRate)
		dropped := c.buffer.Append(resampled)

		c.metrics.RecordBlockCaptured()
		c.metrics.RecordSamplesBuffered(len(resampled), dropped)
		c.metrics.SetBufferDepth(c.buffer.Len())

		if dropped > 0 {
			c.logger.Warn("Segment buffer overflow, oldest samples dropped",
				slog.Int("dropped_samples", dropped),
			)
		}

		c.pump.Trigger()
	}
}

// deliverChunk ships one chunk and merges the partial result into the
// session. Called only from the pump's drain loop, one chunk at a time.
func (c *Controller) deliverChunk(chunk []float32) error {
	c.mu.Lock()
	ctx := c.pumpCtx
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID == "" || ctx.Err() != nil {
		return fmt.Errorf("session closed")
	}

	start := time.Now()
	result, err := c.client.PushChunk(ctx, sessionID, chunk)
	if err != nil {
		c.metrics.RecordChunkFailed()
		return fmt.Errorf("push chunk: %w", err)
	}
	c.metrics.RecordChunkDelivered(time.Since(start).Seconds())
	c.metrics.SetBufferDepth(c.buffer.Len())

	c.mu.Lock()
	if result.Text != "" {
		c.transcript = result.Text
	}
	if result.Language != "" {
		c.language = result.Language
	}
	text, language := c.transcript, c.language
	c.mu.Unlock()

	c.observer.notifyTranscript(Transcript{Text: text, Language: language})
	return nil
}

// fail moves the session to Error, tears down acquired resources, and
// retains the error for display. Idempotent; recovery requires Start.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.state == Error {
		c.mu.Unlock()
		return
	}
	wasRecording := c.recording
	c.recording = false
	c.state = Error
	c.lastErr = err
	sessionID := c.sessionID
	c.sessionID = ""
	if c.pumpCancel != nil {
		c.pumpCancel()
	}
	feedDone := c.feedDone
	c.feedDone = nil
	c.mu.Unlock()

	if wasRecording {
		if terr := c.source.Stop(); terr != nil {
			c.logger.Warn("Capture teardown failed",
				slog.String("error", terr.Error()),
			)
		}
		if feedDone != nil {
			<-feedDone
		}
	}

	c.buffer.Reset()
	c.metrics.SetBufferDepth(0)
	c.metrics.RecordSessionFailed()

	c.logger.Error("Session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	c.observer.notifyError(err)
	c.observer.notifyState(Error)
}
