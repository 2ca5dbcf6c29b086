package video

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"lookout/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// capture abstracts the underlying video handle so the reader loop can be
// exercised against a fake in tests. *gocv.VideoCapture satisfies it.
type capture interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// openFunc opens a capture for a descriptor.
type openFunc func(desc SourceDescriptor) (capture, error)

// Frame is an owned image buffer plus its capture time. The caller owns the
// Mat and must Close it.
type Frame struct {
	Mat        gocv.Mat
	CapturedAt time.Time
}

// Status is a point-in-time snapshot of the source health.
type Status struct {
	Connected      bool    `json:"connected"`
	Alive          bool    `json:"alive"`
	ReconnectCount int     `json:"reconnect_count"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	Kind           string  `json:"kind"`
	Locator        string  `json:"locator"`
}

// Manager owns one live frame source: it connects, keeps a background reader
// filling a single-slot newest-wins frame buffer, downsizes oversized frames
// and transparently reconnects on failure.
type Manager struct {
	cfg  config.SourceConfig
	desc SourceDescriptor
	open openFunc

	mu              sync.Mutex
	latest          gocv.Mat
	hasFrame        bool
	lastFrameTime   time.Time
	connected       bool
	stopped         bool
	width, height   int
	fps             float64
	reconnects      int
	downscaleLogged bool

	readRetryDelay time.Duration
	reconnectDelay time.Duration

	stopCh chan struct{}
	done   chan struct{}
}

// NewManager builds a Manager for the configured source locator. The locator
// must classify to a usable source kind.
func NewManager(cfg config.SourceConfig) (*Manager, error) {
	desc := Classify(cfg.URL)
	if desc.Kind == SourceUnknown {
		return nil, fmt.Errorf("unrecognized source locator %q", cfg.URL)
	}
	return newManager(cfg, desc, openCapture), nil
}

func newManager(cfg config.SourceConfig, desc SourceDescriptor, open openFunc) *Manager {
	return &Manager{
		cfg:            cfg,
		desc:           desc,
		open:           open,
		readRetryDelay: 100 * time.Millisecond,
		reconnectDelay: time.Duration(cfg.ReconnectDelaySec) * time.Second,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Descriptor returns the immutable descriptor of the managed source.
func (m *Manager) Descriptor() SourceDescriptor {
	return m.desc
}

// Start connects to the source and launches the background reader. The
// initial connect failure is not terminal; the reader keeps retrying within
// the configured attempt ceiling.
func (m *Manager) Start() error {
	cap, err := m.connect()
	if err != nil {
		log.WithError(err).Warnf("Initial connect to %s failed, reader will retry", m.desc.Locator)
	}
	go m.readLoop(cap)
	return nil
}

// Frame returns a copy of the most recent frame, or ok=false if none has been
// captured yet. It never blocks on the reader.
func (m *Manager) Frame() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasFrame {
		return Frame{}, false
	}
	return Frame{Mat: m.latest.Clone(), CapturedAt: m.lastFrameTime}, true
}

// Status reports connection health. Alive requires a frame within the
// liveness window, which distinguishes "socket open" from "producing data".
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := time.Duration(m.cfg.LivenessWindowSec) * time.Second
	alive := m.connected && m.hasFrame && time.Since(m.lastFrameTime) < window
	return Status{
		Connected:      m.connected,
		Alive:          alive,
		ReconnectCount: m.reconnects,
		Width:          m.width,
		Height:         m.height,
		FPS:            m.fps,
		Kind:           string(m.desc.Kind),
		Locator:        m.desc.Locator,
	}
}

// Stop shuts the reader down cooperatively with a bounded join.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		log.Warnf("Source reader for %s did not stop in time", m.desc.Locator)
	}
}

func (m *Manager) connect() (capture, error) {
	cap, err := m.open(m.desc)
	if err != nil {
		return nil, err
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("source %s did not open", m.desc.Locator)
	}

	m.mu.Lock()
	m.connected = true
	m.downscaleLogged = false
	m.width = int(cap.Get(gocv.VideoCaptureFrameWidth))
	m.height = int(cap.Get(gocv.VideoCaptureFrameHeight))
	m.fps = cap.Get(gocv.VideoCaptureFPS)
	m.mu.Unlock()

	log.Infof("Connected to %s source %s (%dx%d @ %.1f fps)",
		m.desc.Kind, m.desc.Locator, m.width, m.height, m.fps)
	return cap, nil
}

func (m *Manager) readLoop(cap capture) {
	defer close(m.done)
	defer func() {
		if cap != nil {
			cap.Close()
		}
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
	}()

	failures := 0
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		if cap == nil {
			next, ok := m.reconnect()
			if !ok {
				return
			}
			cap = next
			failures = 0
			continue
		}

		frame := gocv.NewMat()
		if ok := cap.Read(&frame); !ok || frame.Empty() {
			frame.Close()
			failures++
			if failures >= m.cfg.ReadFailureThreshold {
				log.Warnf("%d consecutive read failures on %s, reconnecting",
					failures, m.desc.Locator)
				cap.Close()
				cap = nil
				m.mu.Lock()
				m.connected = false
				m.mu.Unlock()
				failures = 0
				continue
			}
			if !m.sleep(m.readRetryDelay) {
				return
			}
			continue
		}

		failures = 0
		m.store(frame)
	}
}

// reconnect sleeps the configured delay and opens a fresh capture. It returns
// ok=false once the attempt ceiling is exceeded or the manager is stopping.
func (m *Manager) reconnect() (capture, bool) {
	for {
		m.mu.Lock()
		if m.cfg.MaxReconnectAttempts > 0 && m.reconnects >= m.cfg.MaxReconnectAttempts {
			m.mu.Unlock()
			log.Errorf("Giving up on source %s after %d reconnect attempts",
				m.desc.Locator, m.cfg.MaxReconnectAttempts)
			return nil, false
		}
		m.reconnects++
		attempt := m.reconnects
		m.mu.Unlock()

		log.Infof("Reconnecting to %s (attempt %d)", m.desc.Locator, attempt)
		if !m.sleep(m.reconnectDelay) {
			return nil, false
		}

		cap, err := m.connect()
		if err != nil {
			log.WithError(err).Warnf("Reconnect attempt %d to %s failed", attempt, m.desc.Locator)
			continue
		}
		return cap, true
	}
}

// store downsizes the frame if it exceeds the configured maximum and swaps it
// into the single-slot buffer, replacing any un-consumed predecessor.
func (m *Manager) store(frame gocv.Mat) {
	w, h := frame.Cols(), frame.Rows()
	nw, nh, scaled := fitWithin(w, h, m.cfg.MaxWidth, m.cfg.MaxHeight)
	if scaled {
		resized := gocv.NewMat()
		gocv.Resize(frame, &resized, image.Pt(nw, nh), 0, 0, gocv.InterpolationArea)
		frame.Close()
		frame = resized
	}

	m.mu.Lock()
	if scaled && !m.downscaleLogged {
		m.downscaleLogged = true
		log.Infof("Downscaling %s frames from %dx%d to %dx%d", m.desc.Locator, w, h, nw, nh)
	}
	if m.hasFrame {
		m.latest.Close()
	}
	m.latest = frame
	m.hasFrame = true
	m.lastFrameTime = time.Now()
	m.mu.Unlock()
}

// sleep waits for d unless the manager is stopped first.
func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-m.stopCh:
			return false
		default:
			return true
		}
	}
	select {
	case <-m.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// openCapture opens the real gocv handle with protocol-specific tuning.
func openCapture(desc SourceDescriptor) (capture, error) {
	switch desc.Kind {
	case SourceWebcam:
		cap, err := gocv.OpenVideoCapture(desc.DeviceIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to open webcam %d: %w", desc.DeviceIndex, err)
		}
		cap.Set(gocv.VideoCaptureFrameWidth, 1280)
		cap.Set(gocv.VideoCaptureFrameHeight, 720)
		cap.Set(gocv.VideoCaptureFPS, 30)
		return cap, nil

	case SourceNetworkStream:
		// Low-latency tuning for live streams: TCP transport and bounded
		// socket timeouts for RTSP, a single-frame internal buffer so we
		// always read the freshest frame.
		if len(desc.Locator) >= 7 && desc.Locator[:7] == "rtsp://" {
			os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|stimeout;3000000")
		}
		cap, err := gocv.OpenVideoCapture(desc.Locator)
		if err != nil {
			return nil, fmt.Errorf("failed to open stream %s: %w", desc.Locator, err)
		}
		cap.Set(gocv.VideoCaptureBufferSize, 1)
		return cap, nil

	case SourceFileStream:
		cap, err := gocv.OpenVideoCapture(desc.Locator)
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", desc.Locator, err)
		}
		return cap, nil
	}
	return nil, fmt.Errorf("cannot open source of kind %q", desc.Kind)
}
