package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	models "billtrack/database/models_pkg"
	"billtrack/recurring"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func netflixHistory() []recurring.Transaction {
	var txns []recurring.Transaction
	for i := 0; i < 6; i++ {
		txns = append(txns, recurring.Transaction{
			ID:          fmt.Sprintf("nf-%d", i),
			Date:        day(2024, time.January, 1).AddDate(0, i, 0),
			Amount:      decimal.RequireFromString("15.99"),
			Description: "NETFLIX.COM",
		})
	}
	return txns
}

type fakeFeed struct {
	mu     sync.Mutex
	txns   map[string][]recurring.Transaction
	err    error
	calls  int
	sinces []time.Time
}

func (f *fakeFeed) History(_ context.Context, userID string, since time.Time) ([]recurring.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sinces = append(f.sinces, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []recurring.Transaction
	for _, tx := range f.txns[userID] {
		if tx.Date.After(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakeStore struct {
	mu          sync.Mutex
	bills       map[string][]recurring.DetectedBill
	replaced    map[string][]recurring.DetectedBill
	applied     map[string]recurring.ScanOutcome
	users       []string
	replaceErr  error
	listErrFor  string
	nextID      int64
	replaceHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bills:    make(map[string][]recurring.DetectedBill),
		replaced: make(map[string][]recurring.DetectedBill),
		applied:  make(map[string]recurring.ScanOutcome),
	}
}

func (s *fakeStore) ReplaceAutoDetected(_ context.Context, userID string, bills []recurring.DetectedBill) ([]recurring.DetectedBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceHits++
	if s.replaceErr != nil {
		return nil, s.replaceErr
	}
	out := make([]recurring.DetectedBill, len(bills))
	for i, b := range bills {
		s.nextID++
		b.ID = s.nextID
		b.UserID = userID
		out[i] = b
	}
	s.replaced[userID] = out
	return out, nil
}

func (s *fakeStore) ListBills(_ context.Context, userID string) ([]recurring.DetectedBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.listErrFor {
		return nil, errors.New("connection reset")
	}
	return s.bills[userID], nil
}

func (s *fakeStore) ListUserIDs(context.Context) ([]string, error) {
	return s.users, nil
}

func (s *fakeStore) ApplyScan(_ context.Context, userID string, outcome recurring.ScanOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[userID] = outcome
	return nil
}

func (s *fakeStore) ListEvents(context.Context, string, int) ([]models.BillEvent, error) {
	return nil, nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released int
}

func (l *fakeLock) Acquire(_ context.Context, userID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] {
		return func() {}, false, nil
	}
	l.acquired = append(l.acquired, userID)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, true, nil
}

func newTestService(feed *fakeFeed, store *fakeStore, lock *fakeLock, now time.Time) *BillService {
	params := recurring.DefaultParams()
	svc := NewBillService(recurring.NewEngine(params, nil), recurring.NewLifecycleTracker(params), feed, store, lock, 2)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRegenerate(t *testing.T) {
	feed := &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": netflixHistory()}}
	store := newFakeStore()
	lock := &fakeLock{}
	svc := newTestService(feed, store, lock, day(2024, time.June, 15))

	report, err := svc.Regenerate(context.Background(), "user-1", false)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Status != RunStatusOK || report.DryRun || report.RunID == "" {
		t.Errorf("unexpected report header %+v", report)
	}
	if len(report.Bills) != 1 || report.Bills[0].ID == 0 {
		t.Fatalf("expected one stored bill, got %+v", report.Bills)
	}
	if b := report.Bills[0]; b.Frequency != recurring.FrequencyMonthly || b.UserID != "user-1" {
		t.Errorf("unexpected bill %+v", b)
	}
	if len(store.replaced["user-1"]) != 1 {
		t.Errorf("expected the bill set to be written, got %+v", store.replaced)
	}
	if len(lock.acquired) != 1 || lock.released != 1 {
		t.Errorf("expected lock acquired and released once, got %v/%d", lock.acquired, lock.released)
	}
	if !feed.sinces[0].IsZero() {
		t.Errorf("regeneration must read the full history, since=%s", feed.sinces[0])
	}
}

func TestRegenerateDryRunWritesNothing(t *testing.T) {
	feed := &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": netflixHistory()}}
	store := newFakeStore()
	lock := &fakeLock{held: map[string]bool{"user-1": true}}
	svc := newTestService(feed, store, lock, day(2024, time.June, 15))

	report, err := svc.Regenerate(context.Background(), "user-1", true)
	if err != nil {
		t.Fatalf("dry run must not need the lock: %v", err)
	}
	if !report.DryRun || len(report.Bills) != 1 || report.Bills[0].ID != 0 {
		t.Errorf("unexpected dry run report %+v", report)
	}
	if store.replaceHits != 0 {
		t.Errorf("dry run wrote to the store")
	}
}

func TestRegenerateIsRepeatable(t *testing.T) {
	feed := &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": netflixHistory()}}
	svc := newTestService(feed, newFakeStore(), &fakeLock{}, day(2024, time.June, 15))

	// row ids are assigned per write; everything else must match
	withoutIDs := func(report *RegenerateReport) string {
		t.Helper()
		bills := make([]recurring.DetectedBill, len(report.Bills))
		for i, b := range report.Bills {
			b.ID = 0
			bills[i] = b
		}
		out, err := json.Marshal(struct {
			Bills      []recurring.DetectedBill
			Rejections []recurring.RejectionRecord
		}{bills, report.Rejections})
		if err != nil {
			t.Fatal(err)
		}
		return string(out)
	}

	first, err := svc.Regenerate(context.Background(), "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Regenerate(context.Background(), "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if first.Bills[0].ID == second.Bills[0].ID {
		t.Errorf("expected fresh row ids, got %d twice", first.Bills[0].ID)
	}
	if a, b := withoutIDs(first), withoutIDs(second); a != b {
		t.Errorf("regeneration is not repeatable:\n%s\n%s", a, b)
	}
}

func TestRegenerateNoData(t *testing.T) {
	feed := &fakeFeed{}
	store := newFakeStore()
	svc := newTestService(feed, store, &fakeLock{}, day(2024, time.June, 15))

	report, err := svc.Regenerate(context.Background(), "new-user", false)
	if err != nil {
		t.Fatalf("no data must not be an error: %v", err)
	}
	if report.Status != RunStatusNoData || len(report.Bills) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if store.replaceHits != 0 {
		t.Errorf("no-data run must not touch stored bills")
	}
}

func TestRegenerateFailures(t *testing.T) {
	storageErr := errors.New("disk full")

	tests := []struct {
		name    string
		feed    *fakeFeed
		store   func() *fakeStore
		lock    *fakeLock
		wantErr error
	}{
		{
			name: "storage failure",
			feed: &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": netflixHistory()}},
			store: func() *fakeStore {
				s := newFakeStore()
				s.replaceErr = storageErr
				return s
			},
			lock:    &fakeLock{},
			wantErr: storageErr,
		},
		{
			name:    "lock held",
			feed:    &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": netflixHistory()}},
			store:   newFakeStore,
			lock:    &fakeLock{held: map[string]bool{"user-1": true}},
			wantErr: ErrRunInProgress,
		},
		{
			name:    "feed failure",
			feed:    &fakeFeed{err: storageErr},
			store:   newFakeStore,
			lock:    &fakeLock{},
			wantErr: storageErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.feed, tt.store(), tt.lock, day(2024, time.June, 15))
			report, err := svc.Regenerate(context.Background(), "user-1", false)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if report != nil {
				t.Errorf("expected no report on failure, got %+v", report)
			}
		})
	}
}

func netflixBill(id int64) recurring.DetectedBill {
	return recurring.DetectedBill{
		ID:                  id,
		MerchantKey:         recurring.MerchantKey("NETFLIX.COM", ""),
		MerchantName:        recurring.MerchantKey("NETFLIX.COM", ""),
		ExpectedAmount:      decimal.RequireFromString("15.99"),
		Frequency:           recurring.FrequencyMonthly,
		NextPredictedDate:   day(2024, time.July, 1),
		LastTransactionDate: day(2024, time.June, 1),
		ConfidenceScore:     95,
		IsActive:            true,
		LifecycleState:      recurring.StateActive,
		AutoDetected:        true,
		OccurrenceCount:     6,
	}
}

func TestScan(t *testing.T) {
	history := append(netflixHistory(), recurring.Transaction{
		ID:          "nf-july",
		Date:        day(2024, time.July, 1),
		Amount:      decimal.RequireFromString("15.99"),
		Description: "NETFLIX.COM",
	})
	feed := &fakeFeed{txns: map[string][]recurring.Transaction{"user-1": history}}
	store := newFakeStore()
	store.bills["user-1"] = []recurring.DetectedBill{netflixBill(1)}
	svc := newTestService(feed, store, &fakeLock{}, day(2024, time.July, 2))

	report, err := svc.Scan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !feed.sinces[0].Equal(day(2024, time.June, 1)) {
		t.Errorf("expected feed read since last payment, got %s", feed.sinces[0])
	}
	if len(report.Events) != 1 || report.Events[0].Kind != recurring.EventPaid {
		t.Fatalf("expected one paid event, got %+v", report.Events)
	}
	if len(report.Updated) != 1 || !report.Updated[0].NextPredictedDate.Equal(day(2024, time.July, 31)) {
		t.Errorf("expected next date rolled to Jul 31, got %+v", report.Updated)
	}
	if got := store.applied["user-1"]; len(got.Events) != 1 {
		t.Errorf("scan outcome not stored: %+v", got)
	}
}

func TestScanWithoutActiveBills(t *testing.T) {
	dormant := netflixBill(1)
	dormant.LifecycleState = recurring.StateDormant
	dormant.IsActive = false

	feed := &fakeFeed{}
	store := newFakeStore()
	store.bills["user-1"] = []recurring.DetectedBill{dormant}
	svc := newTestService(feed, store, &fakeLock{}, day(2024, time.July, 2))

	report, err := svc.Scan(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != RunStatusNoData || feed.calls != 0 {
		t.Errorf("expected no-data without reading the feed, got %+v (feed calls %d)", report, feed.calls)
	}
}

func TestScanAll(t *testing.T) {
	store := newFakeStore()
	store.users = []string{"user-a", "user-b", "user-c", "user-d"}
	for _, u := range store.users {
		store.bills[u] = []recurring.DetectedBill{netflixBill(1)}
	}
	store.listErrFor = "user-b"

	dormantNow := day(2024, time.October, 15)
	svc := newTestService(&fakeFeed{}, store, &fakeLock{held: map[string]bool{"user-c": true}}, dormantNow)

	report, err := svc.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if report.Users != 4 || report.Scanned != 2 || report.Skipped != 1 {
		t.Errorf("unexpected counts %+v", report)
	}
	if failed := report.FailedUsers(); len(failed) != 1 || failed[0] != "user-b" {
		t.Errorf("expected user-b to fail, got %v", failed)
	}
	// the bills went quiet for more than the grace window
	if report.Events != 2 {
		t.Errorf("expected one dormant event per scanned user, got %d", report.Events)
	}
	for _, u := range []string{"user-a", "user-d"} {
		out := store.applied[u]
		if len(out.Events) != 1 || out.Events[0].Kind != recurring.EventDormant {
			t.Errorf("%s: expected dormant event, got %+v", u, out.Events)
		}
	}
}
