// Package stats aggregates engagement numbers from the tracking store, with
// the tracker service as a degraded fallback when the store is unreachable.
package stats

import (
	"fmt"
	"log/slog"
	"time"

	"outreach/internal/models"
)

// Store is the tracking-store slice the aggregator reads from.
type Store interface {
	CountSentBetween(start, end time.Time) (int, error)
	CountOpenedBetween(start, end time.Time) (int, error)
	CountRepliedBetween(start, end time.Time) (int, error)
	Totals() (sent, opened, replied int, err error)
}

// Fallback supplies lightweight totals when the store cannot be read,
// normally the tracker client.
type Fallback interface {
	Stats() (sent, opened, replied int, err error)
}

// Aggregator computes engagement summaries over day windows.
type Aggregator struct {
	store    Store
	fallback Fallback
	logger   *slog.Logger
}

func NewAggregator(store Store, fallback Fallback, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		fallback: fallback,
		logger:   logger.With("component", "stats"),
	}
}

// Aggregate sums sent/opened/replied over the given YYYY-MM-DD dates, or over
// all history when all is set. Store failures degrade to the fallback's
// unscoped totals rather than failing the request.
func (a *Aggregator) Aggregate(dates []string, all bool) (models.StatsSummary, error) {
	if all {
		sent, opened, replied, err := a.store.Totals()
		if err != nil {
			return a.degrade(err)
		}
		return summarize(sent, opened, replied), nil
	}

	var sent, opened, replied int
	for _, date := range dates {
		start, end, err := DayWindow(date)
		if err != nil {
			return models.StatsSummary{}, err
		}

		s, err := a.store.CountSentBetween(start, end)
		if err != nil {
			return a.degrade(err)
		}
		o, err := a.store.CountOpenedBetween(start, end)
		if err != nil {
			return a.degrade(err)
		}
		r, err := a.store.CountRepliedBetween(start, end)
		if err != nil {
			return a.degrade(err)
		}

		sent += s
		opened += o
		replied += r
	}

	return summarize(sent, opened, replied), nil
}

// degrade reports the store failure and answers from the tracker instead.
// The fallback covers all history, not the requested dates.
func (a *Aggregator) degrade(cause error) (models.StatsSummary, error) {
	if a.fallback == nil {
		return models.StatsSummary{}, cause
	}

	a.logger.Warn("tracking store unreachable, falling back to tracker stats", "error", cause)
	sent, opened, replied, err := a.fallback.Stats()
	if err != nil {
		return models.StatsSummary{}, fmt.Errorf("tracking store unreachable and tracker fallback failed: %w", err)
	}
	return summarize(sent, opened, replied), nil
}

// DayWindow returns the closed [00:00:00, 23:59:59] window for a YYYY-MM-DD
// date in local time.
func DayWindow(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	end := start.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	return start, end, nil
}

func summarize(sent, opened, replied int) models.StatsSummary {
	summary := models.StatsSummary{Sent: sent, Opened: opened, Replied: replied}
	if sent > 0 {
		summary.OpenRate = float64(opened) / float64(sent) * 100
		summary.ReplyRate = float64(replied) / float64(sent) * 100
	}
	return summary
}
