package session

import (
	"sync"

	"github.com/duychung-keytechx/speech-demo/internal/audio"
)

// deliveryPump drains the segment buffer in fixed-size chunks and delivers
// each one before extracting the next, so at most one chunk is ever in
// flight and chunks arrive at the service in extraction order.
//
// Trigger while a drain is running is a no-op: the draining flag is the
// sole guard against a second concurrent loop and is cleared strictly after
// the loop exits, on error paths included.
type deliveryPump struct {
	buffer   *audio.SegmentBuffer
	chunkLen int
	deliver  func(chunk []float32) error
	onError  func(error)

	draining bool
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func newDeliveryPump(buffer *audio.SegmentBuffer, chunkLen int,
	deliver func([]float32) error, onError func(error)) *deliveryPump {

	return &deliveryPump{
		buffer:   buffer,
		chunkLen: chunkLen,
		deliver:  deliver,
		onError:  onError,
	}
}

// Trigger starts a drain unless one is already in flight.
func (p *deliveryPump) Trigger() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.drain()
}

// Wait blocks until no drain is in flight. Callers must guarantee no
// concurrent Trigger while waiting (the controller stops capture first).
func (p *deliveryPump) Wait() {
	p.wg.Wait()
}

func (p *deliveryPump) drain() {
	defer p.wg.Done()

	for {
		chunk, ok := p.buffer.PopChunk(p.chunkLen)
		if ok {
			if err := p.deliver(chunk); err != nil {
				p.mu.Lock()
				p.draining = false
				p.mu.Unlock()
				p.onError(err)
				return
			}
			continue
		}

		// No full chunk left. Clear the flag under the lock and re-check the
		// buffer, so an append landing between the failed pop and the clear
		// cannot be stranded with no pump running.
		p.mu.Lock()
		if p.buffer.Len() >= p.chunkLen {
			p.mu.Unlock()
			continue
		}
		p.draining = false
		p.mu.Unlock()
		return
	}
}
