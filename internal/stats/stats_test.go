package stats

import (
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"outreach/internal/db"
	"outreach/internal/models"
	"outreach/internal/repository"
)

func setupStore(t *testing.T) *repository.TrackingRepository {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	for _, m := range db.Migrations() {
		if _, err := conn.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}
	return repository.NewTrackingRepository(conn)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seedSent(t *testing.T, store *repository.TrackingRepository, emailID, date string, hour int) {
	t.Helper()

	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	err = store.Create(&models.TrackingRecord{
		EmailID:  emailID,
		Email:    emailID + "@example.com",
		SentTime: day.Add(time.Duration(hour) * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
}

func TestAggregateAcrossDates(t *testing.T) {
	store := setupStore(t)
	seedSent(t, store, "a", "2025-04-15", 9)
	seedSent(t, store, "b", "2025-04-15", 12)
	seedSent(t, store, "c", "2025-04-15", 23)
	seedSent(t, store, "d", "2025-04-16", 8)
	seedSent(t, store, "e", "2025-04-16", 10)
	seedSent(t, store, "f", "2025-04-20", 10)

	if _, err := store.MarkOpened("a", mustDay(t, "2025-04-15").Add(14*time.Hour)); err != nil {
		t.Fatalf("MarkOpened failed: %v", err)
	}

	agg := NewAggregator(store, nil, testLogger())
	summary, err := agg.Aggregate([]string{"2025-04-15", "2025-04-16"}, false)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if summary.Sent != 5 {
		t.Errorf("expected sent=5 across both dates, got %d", summary.Sent)
	}
	if summary.Opened != 1 {
		t.Errorf("expected opened=1, got %d", summary.Opened)
	}
	if summary.OpenRate != 20 {
		t.Errorf("expected open rate 20%%, got %v", summary.OpenRate)
	}
}

func TestAggregateAll(t *testing.T) {
	store := setupStore(t)
	seedSent(t, store, "a", "2025-04-15", 9)
	seedSent(t, store, "b", "2025-05-01", 9)

	agg := NewAggregator(store, nil, testLogger())
	summary, err := agg.Aggregate(nil, true)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if summary.Sent != 2 {
		t.Errorf("expected sent=2, got %d", summary.Sent)
	}
}

func TestAggregateZeroSentHasZeroRates(t *testing.T) {
	store := setupStore(t)

	agg := NewAggregator(store, nil, testLogger())
	summary, err := agg.Aggregate([]string{"2025-04-15"}, false)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if summary.Sent != 0 || summary.OpenRate != 0 || summary.ReplyRate != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}

func TestAggregateInvalidDate(t *testing.T) {
	agg := NewAggregator(setupStore(t), nil, testLogger())
	if _, err := agg.Aggregate([]string{"15/04/2025"}, false); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

type brokenStore struct{}

func (brokenStore) CountSentBetween(start, end time.Time) (int, error) {
	return 0, errors.New("database is locked")
}

func (brokenStore) CountOpenedBetween(start, end time.Time) (int, error) {
	return 0, errors.New("database is locked")
}

func (brokenStore) CountRepliedBetween(start, end time.Time) (int, error) {
	return 0, errors.New("database is locked")
}

func (brokenStore) Totals() (int, int, int, error) {
	return 0, 0, 0, errors.New("database is locked")
}

type staticFallback struct {
	sent, opened, replied int
	err                   error
}

func (f staticFallback) Stats() (int, int, int, error) {
	return f.sent, f.opened, f.replied, f.err
}

func TestAggregateFallsBackToTracker(t *testing.T) {
	agg := NewAggregator(brokenStore{}, staticFallback{sent: 10, opened: 4, replied: 1}, testLogger())

	summary, err := agg.Aggregate([]string{"2025-04-15"}, false)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if summary.Sent != 10 || summary.Opened != 4 || summary.Replied != 1 {
		t.Errorf("expected fallback totals, got %+v", summary)
	}
	if summary.OpenRate != 40 {
		t.Errorf("expected open rate 40%%, got %v", summary.OpenRate)
	}
}

func TestAggregateFallbackAlsoFails(t *testing.T) {
	agg := NewAggregator(brokenStore{}, staticFallback{err: errors.New("connection refused")}, testLogger())
	if _, err := agg.Aggregate(nil, true); err == nil {
		t.Fatal("expected error when store and fallback both fail")
	}
}

func TestDayWindow(t *testing.T) {
	start, end, err := DayWindow("2025-04-15")
	if err != nil {
		t.Fatalf("DayWindow failed: %v", err)
	}
	if start.Hour() != 0 || start.Minute() != 0 {
		t.Errorf("expected midnight start, got %v", start)
	}
	if end.Sub(start) != 23*time.Hour+59*time.Minute+59*time.Second {
		t.Errorf("unexpected window length %v", end.Sub(start))
	}
}

func mustDay(t *testing.T, date string) time.Time {
	t.Helper()
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		t.Fatalf("bad date: %v", err)
	}
	return day
}
