package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"billtrack/service"
)

// ScanRunner runs one incremental scan over every tracked user
type ScanRunner interface {
	ScanAll(ctx context.Context) (*service.ScanAllReport, error)
}

// ScanScheduler periodically advances every user's bills
type ScanScheduler struct {
	runner   ScanRunner
	interval time.Duration
	log      zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewScanScheduler creates a new scan scheduler
func NewScanScheduler(runner ScanRunner, interval time.Duration, log zerolog.Logger) *ScanScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &ScanScheduler{
		runner:   runner,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start begins the scan loop and blocks until Stop is called or ctx ends
func (s *ScanScheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("📅 Scan scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial run
	s.scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.scan(ctx)
		case <-ctx.Done():
			s.log.Info().Msg("📅 Scan scheduler stopped")
			return
		case <-s.done:
			s.log.Info().Msg("📅 Scan scheduler stopped")
			return
		}
	}
}

// Stop stops the scan loop; calling it more than once is safe
func (s *ScanScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *ScanScheduler) scan(ctx context.Context) {
	report, err := s.runner.ScanAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("⚠️  Scheduled scan failed")
		return
	}
	if len(report.Failed) > 0 {
		s.log.Warn().Strs("users", report.FailedUsers()).Msg("⚠️  Some users failed to scan")
	}
}
