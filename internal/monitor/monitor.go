package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/framereplay/internal/logging"
)

// FileName is the status file written into the monitor directory.
const FileName = "status.json"

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	// Status produces the value written to the status file.
	Status   func() any
	Dir      string
	Interval time.Duration
}

// Service periodically writes the program status to disk
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Path returns the status file location.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, FileName)
}

// WriteStatus writes the current status once. The file is replaced
// atomically so readers never see a partial document.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(struct {
		Time   time.Time `json:"time"`
		Status any       `json:"status"`
	}{time.Now().UTC(), s.deps.Status()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if err := os.MkdirAll(s.deps.Dir, 0755); err != nil {
		return fmt.Errorf("create monitor dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.deps.Dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("create status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path())
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Status == nil {
		return fmt.Errorf("monitor: no status source")
	}
	if s.deps.Interval <= 0 {
		return fmt.Errorf("monitor: interval must be positive")
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor", "path", s.Path())

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
					continue
				}
				logger.Debug("Status written", "path", s.Path())
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
