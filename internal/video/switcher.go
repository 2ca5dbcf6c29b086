package video

import (
	"sync"

	"lookout/config"

	log "github.com/sirupsen/logrus"
)

// Switcher owns the active source manager and allows swapping the source at
// runtime. Readers always see a consistent manager; the old one is stopped
// after the swap.
type Switcher struct {
	mu  sync.Mutex
	cfg config.SourceConfig
	mgr *Manager
}

// NewSwitcher builds a switcher around the configured source.
func NewSwitcher(cfg config.SourceConfig) (*Switcher, error) {
	mgr, err := NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Switcher{cfg: cfg, mgr: mgr}, nil
}

// Start starts the active manager.
func (s *Switcher) Start() error {
	return s.current().Start()
}

// Stop stops the active manager.
func (s *Switcher) Stop() {
	s.current().Stop()
}

// Frame returns the newest frame of the active source.
func (s *Switcher) Frame() (Frame, bool) {
	return s.current().Frame()
}

// Descriptor returns the active source descriptor.
func (s *Switcher) Descriptor() SourceDescriptor {
	return s.current().Descriptor()
}

// Status reports the health of the active source.
func (s *Switcher) Status() Status {
	return s.current().Status()
}

// Change switches to a new source locator. The new manager is started before
// the old one is torn down, so a failed classification leaves the current
// source untouched.
func (s *Switcher) Change(url string) error {
	cfg := s.cfg
	cfg.URL = url

	mgr, err := NewManager(cfg)
	if err != nil {
		return err
	}
	if err := mgr.Start(); err != nil {
		// Non-terminal: the manager keeps reconnecting in the background.
		log.Warnf("New source %s not yet available: %v", url, err)
	}

	s.mu.Lock()
	old := s.mgr
	s.mgr = mgr
	s.cfg = cfg
	s.mu.Unlock()

	old.Stop()
	log.Infof("Video source switched to %s", url)
	return nil
}

func (s *Switcher) current() *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr
}
