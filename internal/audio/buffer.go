package audio

import (
	"sync"
	"time"
)

// SegmentBuffer accumulates target-rate samples that have not yet been sent.
// It grows by Append and shrinks only by FIFO removal of whole chunks via
// PopChunk. A single recording session owns one buffer; the capture callback
// appends while the delivery pump pops, so access is mutex-guarded.
//
// By default the buffer is unbounded: if delivery is slower than capture the
// buffer grows until delivery catches up. An optional bound (maxSamples > 0)
// drops the oldest samples on overflow and counts the drops.
type SegmentBuffer struct {
	samples    []float32
	maxSamples int

	totalAppended uint64
	totalPopped   uint64
	droppedOldest uint64
	lastUpdate    time.Time

	mu sync.Mutex
}

// BufferStats is a snapshot of buffer counters for monitoring.
type BufferStats struct {
	Buffered      int    `json:"buffered_samples"`
	TotalAppended uint64 `json:"total_appended"`
	TotalPopped   uint64 `json:"total_popped"`
	DroppedOldest uint64 `json:"dropped_oldest"`
}

// NewSegmentBuffer creates a segment buffer. maxSamples limits how many
// samples may be held at once; 0 means unbounded.
func NewSegmentBuffer(maxSamples int) *SegmentBuffer {
	return &SegmentBuffer{
		samples:    make([]float32, 0, 16000),
		maxSamples: maxSamples,
		lastUpdate: time.Now(),
	}
}

// Append concatenates samples to the end of the buffer, preserving order.
// Returns the number of oldest samples dropped to honor the bound (0 when
// unbounded or under the bound).
func (b *SegmentBuffer) Append(samples []float32) int {
	if len(samples) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, samples...)
	b.totalAppended += uint64(len(samples))
	b.lastUpdate = time.Now()

	if b.maxSamples <= 0 || len(b.samples) <= b.maxSamples {
		return 0
	}

	drop := len(b.samples) - b.maxSamples
	b.samples = b.samples[:copy(b.samples, b.samples[drop:])]
	b.droppedOldest += uint64(drop)
	return drop
}

// PopChunk removes and returns the first chunkLen samples. If fewer than
// chunkLen samples are buffered it returns (nil, false) and leaves the
// buffer unchanged; there is no partial extraction. The returned slice is
// owned by the caller.
func (b *SegmentBuffer) PopChunk(chunkLen int) ([]float32, bool) {
	if chunkLen <= 0 {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) < chunkLen {
		return nil, false
	}

	chunk := make([]float32, chunkLen)
	copy(chunk, b.samples[:chunkLen])
	b.samples = b.samples[:copy(b.samples, b.samples[chunkLen:])]
	b.totalPopped += uint64(chunkLen)
	return chunk, true
}

// Reset clears the buffer to empty. Used on session start and teardown.
func (b *SegmentBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.totalAppended = 0
	b.totalPopped = 0
	b.droppedOldest = 0
	b.lastUpdate = time.Now()
}

// Len returns the number of buffered samples.
func (b *SegmentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// LastUpdate returns the time of the last append or reset.
func (b *SegmentBuffer) LastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// Stats returns current buffer statistics.
func (b *SegmentBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Buffered:      len(b.samples),
		TotalAppended: b.totalAppended,
		TotalPopped:   b.totalPopped,
		DroppedOldest: b.droppedOldest,
	}
}
