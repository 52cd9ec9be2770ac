package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/duychung-keytechx/speech-demo/internal/audio"
)

func TestPumpReentrantTriggerIsNoOp(t *testing.T) {
	buffer := audio.NewSegmentBuffer(0)
	buffer.Append(make([]float32, 100))

	gate := make(chan struct{})
	var delivered int
	var mu sync.Mutex

	pump := newDeliveryPump(buffer, 100, func(chunk []float32) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		<-gate
		return nil
	}, func(error) {})

	pump.Trigger()
	// Re-entrant triggers while the first delivery is blocked.
	for i := 0; i < 10; i++ {
		pump.Trigger()
	}

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	if delivered != 1 {
		t.Errorf("Expected a single in-flight delivery, got %d", delivered)
	}
	mu.Unlock()

	close(gate)
	pump.Wait()
}

func TestPumpPicksUpLateAppend(t *testing.T) {
	buffer := audio.NewSegmentBuffer(0)
	buffer.Append(make([]float32, 10))

	var delivered int
	var mu sync.Mutex
	var once sync.Once

	pump := newDeliveryPump(buffer, 10, func(chunk []float32) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		// A chunk arriving while the drain finishes must not be stranded.
		once.Do(func() { buffer.Append(make([]float32, 10)) })
		return nil
	}, func(error) {})

	pump.Trigger()
	pump.Wait()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 2 {
		t.Errorf("Expected both chunks delivered in one drain, got %d", delivered)
	}
}

func TestPumpClearsFlagOnError(t *testing.T) {
	buffer := audio.NewSegmentBuffer(0)
	buffer.Append(make([]float32, 20))

	failures := 0
	var mu sync.Mutex

	pump := newDeliveryPump(buffer, 10, func(chunk []float32) error {
		return errors.New("boom")
	}, func(err error) {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	pump.Trigger()
	pump.Wait()

	mu.Lock()
	if failures != 1 {
		t.Fatalf("Expected one error callback, got %d", failures)
	}
	mu.Unlock()

	// The single-flight flag must be clear so a later trigger can run.
	pump.mu.Lock()
	draining := pump.draining
	pump.mu.Unlock()
	if draining {
		t.Error("Expected draining flag cleared after error path")
	}
}
