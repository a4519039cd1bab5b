package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	models "billtrack/database/models_pkg"
	"billtrack/logger"
	"billtrack/recurring"
)

// ErrRunInProgress is returned when another run holds the user's lock
var ErrRunInProgress = errors.New("a run for this user is already in progress")

// TransactionFeed supplies a user's expense history
type TransactionFeed interface {
	History(ctx context.Context, userID string, since time.Time) ([]recurring.Transaction, error)
}

// BillStore persists detected bills and scan results
type BillStore interface {
	ReplaceAutoDetected(ctx context.Context, userID string, bills []recurring.DetectedBill) ([]recurring.DetectedBill, error)
	ListBills(ctx context.Context, userID string) ([]recurring.DetectedBill, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ApplyScan(ctx context.Context, userID string, outcome recurring.ScanOutcome) error
	ListEvents(ctx context.Context, userID string, limit int) ([]models.BillEvent, error)
}

// RunLocker serializes runs of the same user
type RunLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), ok bool, err error)
}

// RunStatus summarizes how a run ended
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusNoData RunStatus = "no_data"
)

// RegenerateReport is the result of a full regeneration. Written bills carry
// the row ids of this write, so only bills and rejections repeat across runs.
type RegenerateReport struct {
	RunID       string                      `json:"run_id"`
	UserID      string                      `json:"user_id"`
	Status      RunStatus                   `json:"status"`
	DryRun      bool                        `json:"dry_run"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Bills       []recurring.DetectedBill    `json:"bills"`
	Rejections  []recurring.RejectionRecord `json:"rejections"`
}

// ScanReport is the result of one user's incremental scan
type ScanReport struct {
	RunID     string                   `json:"run_id"`
	UserID    string                   `json:"user_id"`
	Status    RunStatus                `json:"status"`
	ScannedAt time.Time                `json:"scanned_at"`
	Updated   []recurring.DetectedBill `json:"updated"`
	Events    []recurring.BillEvent    `json:"events"`
}

// ScanAllReport aggregates a scan over every tracked user
type ScanAllReport struct {
	Users    int               `json:"users"`
	Scanned  int               `json:"scanned"`
	Skipped  int               `json:"skipped"`
	Failed   map[string]string `json:"failed,omitempty"`
	Events   int               `json:"events"`
	Duration time.Duration     `json:"duration"`
}

// BillService runs detection and lifecycle scans against the stores
type BillService struct {
	engine  *recurring.Engine
	tracker *recurring.LifecycleTracker
	feed    TransactionFeed
	store   BillStore
	lock    RunLocker
	workers int
	now     func() time.Time
}

// NewBillService creates the service; workers bounds ScanAll parallelism
func NewBillService(engine *recurring.Engine, tracker *recurring.LifecycleTracker, feed TransactionFeed, store BillStore, lock RunLocker, workers int) *BillService {
	if workers <= 0 {
		workers = 1
	}
	return &BillService{
		engine:  engine,
		tracker: tracker,
		feed:    feed,
		store:   store,
		lock:    lock,
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// runContext attaches user and run ids to the context logger
func runContext(ctx context.Context, userID, mode string) (context.Context, string) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().
		Str("user_id", userID).
		Str("run_id", runID).
		Str("mode", mode).
		Logger()
	return logger.WithContext(ctx, log), runID
}

func (s *BillService) acquire(ctx context.Context, userID string) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	release, ok, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return release, nil
}

// Regenerate recomputes the user's bill set from the full history. With
// dryRun the computed set and rejections are returned and nothing is written.
func (s *BillService) Regenerate(ctx context.Context, userID string, dryRun bool) (*RegenerateReport, error) {
	ctx, runID := runContext(ctx, userID, "regenerate")
	log := logger.FromContext(ctx)
	now := s.now()

	report := &RegenerateReport{
		RunID:       runID,
		UserID:      userID,
		Status:      RunStatusOK,
		DryRun:      dryRun,
		GeneratedAt: now,
	}

	if !dryRun {
		release, err := s.acquire(ctx, userID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	txns, err := s.feed.History(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if len(txns) == 0 {
		log.Info().Msg("no transactions, nothing to detect")
		report.Status = RunStatusNoData
		return report, nil
	}

	result := s.engine.Detect(ctx, userID, now, txns)
	report.Bills = result.Bills
	report.Rejections = result.Rejections

	if dryRun {
		log.Info().
			Int("bills", len(result.Bills)).
			Int("rejections", len(result.Rejections)).
			Msg("🧪 dry run complete, nothing written")
		return report, nil
	}

	written, err := s.store.ReplaceAutoDetected(ctx, userID, result.Bills)
	if err != nil {
		log.Error().Err(err).Msg("failed to store detected bills")
		return nil, err
	}
	report.Bills = written

	log.Info().
		Int("transactions", len(txns)).
		Int("bills", len(written)).
		Int("rejections", len(result.Rejections)).
		Msg("✅ bills regenerated")
	return report, nil
}

// Scan advances the user's stored bills with transactions posted since the
// oldest tracked bill was last paid
func (s *BillService) Scan(ctx context.Context, userID string) (*ScanReport, error) {
	ctx, runID := runContext(ctx, userID, "scan")
	log := logger.FromContext(ctx)
	now := s.now()

	report := &ScanReport{
		RunID:     runID,
		UserID:    userID,
		Status:    RunStatusOK,
		ScannedAt: now,
	}

	release, err := s.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	bills, err := s.store.ListBills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bills: %w", err)
	}

	var (
		since   time.Time
		tracked int
	)
	for _, b := range bills {
		if b.LifecycleState != recurring.StateActive || !b.Frequency.IsPeriodic() {
			continue
		}
		if tracked == 0 || b.LastTransactionDate.Before(since) {
			since = b.LastTransactionDate
		}
		tracked++
	}
	if tracked == 0 {
		log.Debug().Msg("no active bills to scan")
		report.Status = RunStatusNoData
		return report, nil
	}

	txns, err := s.feed.History(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	outcome := s.tracker.Advance(now, bills, txns)
	if err := s.store.ApplyScan(ctx, userID, outcome); err != nil {
		log.Error().Err(err).Msg("failed to store scan outcome")
		return nil, err
	}
	report.Updated = outcome.Updated
	report.Events = outcome.Events

	log.Info().
		Int("tracked", tracked).
		Int("transactions", len(txns)).
		Int("updated", len(outcome.Updated)).
		Int("events", len(outcome.Events)).
		Msg("🔄 bills scanned")
	return report, nil
}

// ScanAll scans every user with an active bill using a bounded worker
// pool. A failing user never stops the others.
func (s *BillService) ScanAll(ctx context.Context) (*ScanAllReport, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	users, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	report := &ScanAllReport{Users: len(users), Failed: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, userID := range users {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r, err := s.Scan(gctx, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrRunInProgress):
				report.Skipped++
			case err != nil:
				report.Failed[userID] = err.Error()
				log.Warn().Err(err).Str("user_id", userID).Msg("⚠️  scan failed")
			default:
				report.Scanned++
				report.Events += len(r.Events)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	log.Info().
		Int("users", report.Users).
		Int("scanned", report.Scanned).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Int("events", report.Events).
		Dur("duration", report.Duration).
		Msg("✅ scan of all users complete")
	return report, nil
}

// FailedUsers lists the users whose scan failed, sorted
func (r *ScanAllReport) FailedUsers() []string {
	users := make([]string, 0, len(r.Failed))
	for u := range r.Failed {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// ListBills returns the user's stored bills
func (s *BillService) ListBills(ctx context.Context, userID string) ([]recurring.DetectedBill, error) {
	return s.store.ListBills(ctx, userID)
}

// ListEvents returns the user's most recent lifecycle events
func (s *BillService) ListEvents(ctx context.Context, userID string, limit int) ([]models.BillEvent, error) {
	return s.store.ListEvents(ctx, userID, limit)
}
