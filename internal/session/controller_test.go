package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duychung-keytechx/speech-demo/internal/capture"
	"github.com/duychung-keytechx/speech-demo/internal/metrics"
	"github.com/duychung-keytechx/speech-demo/internal/transcription"
)

// fakeSource is an in-memory capture source fed by the test.
type fakeSource struct {
	rate     int
	startErr error

	blocks   chan capture.Block
	stopOnce sync.Once
	mu       sync.Mutex
	started  bool
	stops    int
}

func newFakeSource(rate int) *fakeSource {
	return &fakeSource{
		rate:   rate,
		blocks: make(chan capture.Block, 64),
	}
}

func (s *fakeSource) Start(ctx context.Context) (<-chan capture.Block, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.blocks, nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.blocks) })
	return nil
}

func (s *fakeSource) SampleRate() int { return s.rate }

func (s *fakeSource) feed(samples []float32) {
	s.blocks <- capture.Block(samples)
}

// fakeClient records calls and lets tests inject delays and failures.
type fakeClient struct {
	mu           sync.Mutex
	startCalls   int
	finishCalls  int
	pushAttempts int
	pushed       [][]float32
	inFlight     int
	maxInFlight  int

	startErr    error
	finishErr   error
	pushErr     error
	pushErrAt   int // fail the Nth push (1-based); 0 = fail all when pushErr set
	pushDelay   time.Duration
	pushResult  transcription.ChunkResult
	finalResult transcription.FinalResult
}

func (f *fakeClient) StartSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.startCalls++
	f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	return "test-session", nil
}

func (f *fakeClient) PushChunk(ctx context.Context, sessionID string, samples []float32) (transcription.ChunkResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.pushAttempts++
	n := f.pushAttempts
	f.mu.Unlock()

	if f.pushDelay > 0 {
		time.Sleep(f.pushDelay)
	}

	f.mu.Lock()
	f.inFlight--
	failed := f.pushErr != nil && (f.pushErrAt == 0 || n == f.pushErrAt)
	if !failed {
		chunk := make([]float32, len(samples))
		copy(chunk, samples)
		f.pushed = append(f.pushed, chunk)
	}
	f.mu.Unlock()

	if failed {
		return transcription.ChunkResult{}, f.pushErr
	}
	return f.pushResult, nil
}

func (f *fakeClient) FinishSession(ctx context.Context, sessionID string) (transcription.FinalResult, error) {
	f.mu.Lock()
	f.finishCalls++
	f.mu.Unlock()
	if f.finishErr != nil {
		return transcription.FinalResult{}, f.finishErr
	}
	return f.finalResult, nil
}

func (f *fakeClient) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

func testController(t *testing.T, source *fakeSource, client *fakeClient, observer Observer) *Controller {
	t.Helper()

	config := Config{
		TargetRate:    16000,
		ChunkDuration: 500 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New(prometheus.NewRegistry())

	c, err := NewController(config, client, source, logger, m, observer)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid defaults", Config{TargetRate: 16000, ChunkDuration: 500 * time.Millisecond}, false},
		{"zero rate", Config{TargetRate: 0, ChunkDuration: time.Second}, true},
		{"zero chunk", Config{TargetRate: 16000, ChunkDuration: 0}, true},
		{"negative bound", Config{TargetRate: 16000, ChunkDuration: time.Second, MaxBuffered: -time.Second}, true},
		{"bound below one chunk", Config{TargetRate: 16000, ChunkDuration: time.Second, MaxBuffered: 100 * time.Millisecond}, true},
		{"bounded valid", Config{TargetRate: 16000, ChunkDuration: 500 * time.Millisecond, MaxBuffered: 10 * time.Second}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
		})
	}
}

func TestChunkLen(t *testing.T) {
	config := Config{TargetRate: 16000, ChunkDuration: 500 * time.Millisecond}
	if config.ChunkLen() != 8000 {
		t.Errorf("Expected 8000 samples per chunk, got %d", config.ChunkLen())
	}
}

func TestStartThenImmediateStop(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{finalResult: transcription.FinalResult{Text: "nothing said", Language: "en"}}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != Recording {
		t.Fatalf("Expected Recording state, got %s", c.State())
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if client.pushCount() != 0 {
		t.Errorf("Expected no chunk pushes with zero audio, got %d", client.pushCount())
	}
	if client.finishCalls != 1 {
		t.Errorf("Expected exactly one finish call, got %d", client.finishCalls)
	}
	if c.State() != Idle {
		t.Errorf("Expected Idle state after stop, got %s", c.State())
	}

	snap := c.Snapshot()
	if snap.Transcript != "nothing said" {
		t.Errorf("Expected final transcript merged, got %q", snap.Transcript)
	}
	if snap.SessionID != "" {
		t.Errorf("Expected session id cleared after stop, got %q", snap.SessionID)
	}
}

func TestEndToEndOneSecondAt44100(t *testing.T) {
	source := newFakeSource(44100)
	client := &fakeClient{finalResult: transcription.FinalResult{Text: "silence", Language: "en"}}

	var finalSeen Transcript
	var finalMu sync.Mutex
	observer := Observer{
		OnTranscript: func(tr Transcript) {
			if tr.Final {
				finalMu.Lock()
				finalSeen = tr
				finalMu.Unlock()
			}
		},
	}
	c := testController(t, source, client, observer)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 1.0s of silence at the native rate, in ~10 callback-sized blocks.
	for i := 0; i < 10; i++ {
		source.feed(make([]float32, 4410))
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// 44100 samples resample to exactly 16000, draining as two 8000-sample chunks.
	if client.pushCount() != 2 {
		t.Fatalf("Expected exactly 2 chunks delivered, got %d", client.pushCount())
	}
	for i, chunk := range client.pushed {
		if len(chunk) != 8000 {
			t.Errorf("Chunk %d: expected 8000 samples, got %d", i, len(chunk))
		}
	}
	if client.finishCalls != 1 {
		t.Errorf("Expected one finish call, got %d", client.finishCalls)
	}

	snap := c.Snapshot()
	if snap.Transcript != "silence" {
		t.Errorf("Expected finish result as final transcript, got %q", snap.Transcript)
	}
	if snap.Buffered != 0 {
		t.Errorf("Expected empty buffer after stop, got %d samples", snap.Buffered)
	}

	finalMu.Lock()
	defer finalMu.Unlock()
	if !finalSeen.Final || finalSeen.Text != "silence" {
		t.Errorf("Expected final transcript event, got %+v", finalSeen)
	}
}

func TestSingleFlightAndOrdering(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{pushDelay: 10 * time.Millisecond}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Feed 6 chunks worth of audio in rapid small blocks while deliveries
	// are artificially slow, marking each chunk span with its index.
	const chunkLen = 8000
	for i := 0; i < 6; i++ {
		for j := 0; j < 4; j++ {
			block := make([]float32, chunkLen/4)
			for k := range block {
				block[k] = float32(i)
			}
			source.feed(block)
		}
	}

	waitFor(t, "all chunks delivered", func() bool { return client.pushCount() == 6 })

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.maxInFlight != 1 {
		t.Errorf("Single-flight violated: %d concurrent pushes observed", client.maxInFlight)
	}
	for i, chunk := range client.pushed {
		if chunk[0] != float32(i) || chunk[len(chunk)-1] != float32(i) {
			t.Errorf("Chunk %d delivered out of order: marker %f..%f", i, chunk[0], chunk[len(chunk)-1])
		}
	}
}

func TestPushFailureMovesToError(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{pushErr: errors.New("connection reset")}

	var observedErr error
	var errMu sync.Mutex
	observer := Observer{
		OnError: func(err error) {
			errMu.Lock()
			observedErr = err
			errMu.Unlock()
		},
	}
	c := testController(t, source, client, observer)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.feed(make([]float32, 16000)) // two chunks worth

	waitFor(t, "error state", func() bool { return c.State() == Error })

	if c.LastError() == nil {
		t.Error("Expected last error retained")
	}
	errMu.Lock()
	if observedErr == nil {
		t.Error("Expected error event emitted")
	}
	errMu.Unlock()

	// Draining halted: the second buffered chunk must not be attempted
	// and the session must not be finished.
	time.Sleep(20 * time.Millisecond)
	client.mu.Lock()
	attempts := client.pushAttempts
	client.mu.Unlock()
	if attempts != 1 {
		t.Errorf("Expected a single delivery attempt before halting, got %d", attempts)
	}
	if client.finishCalls != 0 {
		t.Errorf("Expected no finish call after failure, got %d", client.finishCalls)
	}

	if err := c.Stop(context.Background()); err == nil {
		t.Error("Expected Stop to be invalid from Error state")
	}

	// A fresh start resets transcript, language, and buffer.
	client.pushErr = nil
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Restart from Error failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.Transcript != "" || snap.Language != "" || snap.Buffered != 0 || snap.LastError != "" {
		t.Errorf("Expected clean session after restart, got %+v", snap)
	}
}

func TestPartialResultsMerged(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{
		pushResult:  transcription.ChunkResult{Text: "hello wor", Language: "en"},
		finalResult: transcription.FinalResult{Text: "hello world"},
	}

	var partials []Transcript
	var mu sync.Mutex
	observer := Observer{
		OnTranscript: func(tr Transcript) {
			mu.Lock()
			partials = append(partials, tr)
			mu.Unlock()
		},
	}
	c := testController(t, source, client, observer)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.feed(make([]float32, 8000))
	waitFor(t, "chunk delivered", func() bool { return client.pushCount() == 1 })

	snap := c.Snapshot()
	if snap.Transcript != "hello wor" || snap.Language != "en" {
		t.Errorf("Expected partial merged into session, got %+v", snap)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Finish result wins, detected language survives.
	snap = c.Snapshot()
	if snap.Transcript != "hello world" || snap.Language != "en" {
		t.Errorf("Expected final transcript with detected language, got %+v", snap)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(partials) < 2 || partials[len(partials)-1].Final != true {
		t.Errorf("Expected partial then final transcript events, got %+v", partials)
	}
}

func TestStartSessionFailure(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{startErr: errors.New("service unavailable")}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail")
	}

	if c.State() != Error {
		t.Errorf("Expected Error state, got %s", c.State())
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	if source.started {
		t.Error("Expected capture never started when session start fails")
	}
}

func TestCaptureFailureIsTerminal(t *testing.T) {
	source := newFakeSource(16000)
	source.startErr = fmt.Errorf("open default device: %w", capture.ErrNoDevice)
	client := &fakeClient{}
	c := testController(t, source, client, Observer{})

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Expected Start to fail")
	}
	if !errors.Is(err, capture.ErrNoDevice) {
		t.Errorf("Expected device error to surface, got %v", err)
	}
	if c.State() != Error {
		t.Errorf("Expected Error state, got %s", c.State())
	}
}

func TestFinishFailureMovesToError(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{finishErr: errors.New("gateway timeout")}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := c.Stop(context.Background()); err == nil {
		t.Fatal("Expected Stop to surface finish failure")
	}

	if c.State() != Error {
		t.Errorf("Expected Error state, got %s", c.State())
	}
	if c.LastError() == nil {
		t.Error("Expected last error retained")
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("Expected second Start to be rejected while recording")
	}
	if client.startCalls != 1 {
		t.Errorf("Expected one start session call, got %d", client.startCalls)
	}
}

func TestStopWhileIdleRejected(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{}
	c := testController(t, source, client, Observer{})

	if err := c.Stop(context.Background()); err == nil {
		t.Error("Expected Stop to be invalid from Idle")
	}
	if client.finishCalls != 0 {
		t.Errorf("Expected no finish calls, got %d", client.finishCalls)
	}
}

func TestTrailingPartialChunkDiscarded(t *testing.T) {
	source := newFakeSource(16000)
	client := &fakeClient{finalResult: transcription.FinalResult{Text: "done"}}
	c := testController(t, source, client, Observer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// One full chunk plus a quarter chunk of trailing audio.
	source.feed(make([]float32, 10000))

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if client.pushCount() != 1 {
		t.Errorf("Expected one full chunk delivered, got %d", client.pushCount())
	}
	if got := c.Snapshot().Buffered; got != 0 {
		t.Errorf("Expected trailing partial discarded on stop, got %d samples", got)
	}
}
