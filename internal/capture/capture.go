// Package capture acquires the microphone and delivers raw audio blocks.
// It wraps miniaudio (via malgo) for exclusive mono capture at the device
// rate and hands blocks to the pipeline over a channel, so the audio thread
// never blocks on downstream processing.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/duychung-keytechx/speech-demo/internal/pcm"
)

// Block is one callback's worth of mono samples at the device rate.
type Block []float32

var (
	// ErrPermission indicates the process was denied microphone access.
	ErrPermission = errors.New("microphone access denied")
	// ErrNoDevice indicates no usable capture device is available.
	ErrNoDevice = errors.New("no capture device available")
)

// Source delivers raw audio blocks from an input device. Start returns a
// channel that carries blocks until Stop is called, after which the channel
// is closed. A Source supports one Start/Stop cycle at a time.
type Source interface {
	Start(ctx context.Context) (<-chan Block, error)
	Stop() error
	SampleRate() int
}

// Config contains microphone capture configuration.
type Config struct {
	SampleRate int // device capture rate in Hz
	BlockSize  int // samples per capture callback
}

// Mic captures mono audio from the default input device.
type Mic struct {
	config Config
	logger *slog.Logger

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	blocks   chan Block

	stopped bool
	dropped uint64
	mu      sync.Mutex
}

// NewMic creates a microphone source for the default capture device.
func NewMic(config Config, logger *slog.Logger) *Mic {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.BlockSize <= 0 {
		config.BlockSize = 4096
	}

	return &Mic{
		config: config,
		logger: logger,
	}
}

// SampleRate returns the device capture rate in Hz.
func (m *Mic) SampleRate() int {
	return m.config.SampleRate
}

// Start acquires the default capture device and begins delivering blocks.
// The returned channel is closed by Stop. Acquisition failures map to
// ErrPermission or ErrNoDevice.
func (m *Mic) Start(ctx context.Context) (<-chan Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil, fmt.Errorf("capture already started")
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("miniaudio", slog.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio backend: %v", ErrNoDevice, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.config.BlockSize)

	// Channel sized for ~1s of blocks; the audio thread never blocks on it.
	m.blocks = make(chan Block, 16)
	m.stopped = false
	m.dropped = 0

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			m.onData(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, classifyDeviceError(err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, classifyDeviceError(err)
	}

	m.malgoCtx = malgoCtx
	m.device = device

	m.logger.Info("Microphone capture started",
		slog.Int("sample_rate", m.config.SampleRate),
		slog.Int("block_size", m.config.BlockSize),
	)

	return m.blocks, nil
}

// onData runs on the audio thread. It decodes the f32 frames and hands them
// off without blocking; if the consumer is behind, the block is dropped.
func (m *Mic) onData(input []byte) {
	samples, err := pcm.Decode(input)
	if err != nil || len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	select {
	case m.blocks <- Block(samples):
	default:
		m.dropped++
	}
}

// Stop releases the capture device and closes the block channel.
func (m *Mic) Stop() error {
	m.mu.Lock()
	if m.device == nil || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.blocks)
	dropped := m.dropped
	device := m.device
	malgoCtx := m.malgoCtx
	m.device = nil
	m.malgoCtx = nil
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Warn("Capture blocks dropped during session",
			slog.Uint64("dropped_blocks", dropped),
		)
	}

	var stopErr error
	if err := device.Stop(); err != nil {
		stopErr = fmt.Errorf("stop capture device: %w", err)
	}
	device.Uninit()

	malgoCtx.Uninit()
	malgoCtx.Free()

	m.logger.Info("Microphone capture stopped")
	return stopErr
}

// classifyDeviceError maps backend failures onto the capture error taxonomy.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return fmt.Errorf("%w: %v", ErrNoDevice, err)
}
