package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Device describes one input device for the settings UI.
type Device struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Capturer opens PortAudio capture streams. Init must be called once at
// service start and Terminate at shutdown.
type Capturer struct {
	cfg    config.AudioConfig
	logger *logger.Logger
}

// NewCapturer creates a capturer with the given capture format settings.
func NewCapturer(cfg config.AudioConfig, log *logger.Logger) *Capturer {
	return &Capturer{
		cfg:    cfg,
		logger: log.Named("audio"),
	}
}

// Init initializes the PortAudio host API.
func (c *Capturer) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio host API.
func (c *Capturer) Terminate() {
	if err := portaudio.Terminate(); err != nil {
		c.logger.Error("portaudio terminate failed", logger.Error(err))
	}
}

// ListDevices enumerates input-capable devices in host order.
func ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{Index: i, Name: info.Name})
	}
	return devices, nil
}

// ListDevices enumerates input-capable devices for this capturer.
func (c *Capturer) ListDevices() ([]Device, error) {
	return ListDevices()
}

// Capture is a live recording span. Samples accumulate in memory until Stop
// seals them into a Buffer. Stop must be called exactly once.
type Capture struct {
	stream     *portaudio.Stream
	in         []int16
	sampleRate int
	channels   int
	logger     *logger.Logger

	mu      sync.Mutex
	samples []int16

	stop chan struct{}
	done chan struct{}
}

// Start opens the capture stream and begins accumulating samples. An explicit
// device index that does not resolve is a hard DeviceUnavailableError; the
// default device is used only when no index was configured.
func (c *Capturer) Start(deviceIndex *int) (*Capture, error) {
	info, err := resolveDevice(deviceIndex)
	if err != nil {
		return nil, err
	}

	cap := &Capture{
		in:         make([]int16, 1024),
		sampleRate: c.cfg.SampleRate,
		channels:   c.cfg.Channels,
		logger:     c.logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = c.cfg.Channels
	params.SampleRate = float64(c.cfg.SampleRate)
	params.FramesPerBuffer = len(cap.in) / c.cfg.Channels

	stream, err := portaudio.OpenStream(params, cap.in)
	if err != nil {
		return nil, deviceErr(deviceIndex, fmt.Errorf("open stream failed: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, deviceErr(deviceIndex, fmt.Errorf("start stream failed: %w", err))
	}
	cap.stream = stream

	c.logger.Info("capture started",
		logger.String("device", info.Name),
		logger.Int("sample_rate", c.cfg.SampleRate),
		logger.Int("channels", c.cfg.Channels))

	go cap.run()
	return cap, nil
}

func resolveDevice(deviceIndex *int) (*portaudio.DeviceInfo, error) {
	if deviceIndex != nil {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, deviceErr(deviceIndex, err)
		}
		idx := *deviceIndex
		if idx < 0 || idx >= len(infos) || infos[idx].MaxInputChannels <= 0 {
			return nil, deviceErr(deviceIndex, fmt.Errorf("no input device at index %d", idx))
		}
		return infos[idx], nil
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, deviceErr(nil, err)
	}
	return info, nil
}

func deviceErr(deviceIndex *int, err error) *DeviceUnavailableError {
	idx := -1
	if deviceIndex != nil {
		idx = *deviceIndex
	}
	return &DeviceUnavailableError{Index: idx, Err: err}
}

const (
	// readErrorBackoff throttles retries after a failed stream read.
	readErrorBackoff = 10 * time.Millisecond
	// maxReadErrorBurst bounds consecutive read failures before the
	// capture loop gives up on the stream.
	maxReadErrorBurst = 50
)

// readRetry decides how to respond to the Nth consecutive failed stream
// read: whether to keep trying, and how long to back off first.
func readRetry(consecutive int) (backoff time.Duration, retry bool) {
	if consecutive >= maxReadErrorBurst {
		return 0, false
	}
	return readErrorBackoff, true
}

func (cap *Capture) run() {
	defer close(cap.done)

	failures := 0
	for {
		select {
		case <-cap.stop:
			return
		default:
		}

		if err := cap.stream.Read(); err != nil {
			// Transient overflows are expected on wakeups; keep reading.
			if errors.Is(err, portaudio.InputOverflowed) {
				cap.logger.Debug("input overflowed", logger.Error(err))
				continue
			}
			failures++
			backoff, retry := readRetry(failures)
			if !retry {
				cap.logger.Error("abandoning capture stream after repeated read failures",
					logger.Error(err), logger.Int("failures", failures))
				return
			}
			cap.logger.Debug("stream read error", logger.Error(err))
			time.Sleep(backoff)
			continue
		}
		failures = 0

		cap.mu.Lock()
		cap.samples = append(cap.samples, cap.in...)
		cap.mu.Unlock()
	}
}

// Stop seals the recording and returns the captured buffer. Calling Stop
// twice on the same capture is a programming error in the orchestrator.
func (cap *Capture) Stop() Buffer {
	close(cap.stop)
	<-cap.done

	if err := cap.stream.Stop(); err != nil {
		cap.logger.Error("stream stop failed", logger.Error(err))
	}
	if err := cap.stream.Close(); err != nil {
		cap.logger.Error("stream close failed", logger.Error(err))
	}

	cap.mu.Lock()
	samples := cap.samples
	cap.samples = nil
	cap.mu.Unlock()

	buf := Buffer{Samples: samples, SampleRate: cap.sampleRate, Channels: cap.channels}
	cap.logger.Info("capture stopped",
		logger.Int("samples", len(samples)),
		logger.Duration("duration", buf.Duration()))
	return buf
}
