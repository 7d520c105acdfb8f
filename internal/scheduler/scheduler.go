// Package scheduler runs the campaign lifecycle: it owns the persisted
// campaign configuration, fires the daily dispatch batch at the configured
// local time on configured workdays, and drives the periodic reply scans and
// connection health checks.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"outreach/internal/models"
)

var (
	ErrAlreadyRunning = errors.New("campaign is already running")
	ErrNotRunning     = errors.New("campaign is not running")
	ErrNoCampaign     = errors.New("no campaign configured")
)

// CampaignStore persists the campaign configuration across restarts.
type CampaignStore interface {
	Load() (*models.Campaign, error)
	Save(c *models.Campaign) error
}

// Dispatcher runs one outbound batch.
type Dispatcher interface {
	DispatchBatch(ctx context.Context, target int, countries []string, templateName string) int
}

// Scanner checks the inbox for replies.
type Scanner interface {
	Scan() error
}

// Maintainer heals the mail connections.
type Maintainer interface {
	Maintain()
}

// StatsStore supplies the opened count captured alongside each daily run.
type StatsStore interface {
	CountOpenedBetween(start, end time.Time) (int, error)
}

// RegionExpander maps region names to country lists.
type RegionExpander interface {
	Expand(regions []string) []string
}

// Intervals are the scheduler's periodic cadences.
type Intervals struct {
	Tick        time.Duration
	ReplyScan   time.Duration
	Maintenance time.Duration
}

// Scheduler coordinates the daily campaign loop. All campaign mutation goes
// through it; the HTTP API only calls its exported methods.
type Scheduler struct {
	store      CampaignStore
	dispatcher Dispatcher
	scanner    Scanner
	maintainer Maintainer
	stats      StatsStore
	regions    RegionExpander
	intervals  Intervals
	logger     *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	campaign *models.Campaign
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(store CampaignStore, dispatcher Dispatcher, scanner Scanner, maintainer Maintainer, stats StatsStore, regions RegionExpander, intervals Intervals, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		scanner:    scanner,
		maintainer: maintainer,
		stats:      stats,
		regions:    regions,
		intervals:  intervals,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
	}
}

// Restore loads the persisted campaign and resumes the loop if it was
// running when the process last stopped. last_run_date survives the restart,
// so a completed day is not repeated.
func (s *Scheduler) Restore() error {
	campaign, err := s.store.Load()
	if err != nil {
		return err
	}
	if campaign == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign = campaign

	if campaign.IsRunning {
		s.logger.Info("resuming campaign after restart", "campaign_id", campaign.ID)
		s.startLoopLocked()
	}
	return nil
}

// Start validates and persists the campaign, then launches the polling loop.
// A second Start while running is rejected; there is one campaign at a time.
func (s *Scheduler) Start(c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	// Reuse the stored row and its run history so daily idempotence holds
	// across reconfigurations.
	if s.campaign != nil {
		c.ID = s.campaign.ID
		c.LastRunDate = s.campaign.LastRunDate
		c.LastSentCount = s.campaign.LastSentCount
		c.LastOpenedCount = s.campaign.LastOpenedCount
	}
	c.IsRunning = true

	if err := s.store.Save(c); err != nil {
		return err
	}
	s.campaign = c

	s.logger.Info("campaign started",
		"daily_count", c.DailyCount,
		"send_time", c.SendTime,
		"workdays", c.Workdays,
	)
	s.startLoopLocked()
	return nil
}

// Stop halts the loop and persists the stopped state. Cooperative: a batch
// in flight finishes its current send before the loop exits.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.IsRunning = false
	if err := s.store.Save(s.campaign); err != nil {
		return err
	}
	s.logger.Info("campaign stopped")
	return nil
}

// Halt stops the loop without persisting a stopped state, so a running
// campaign resumes on the next Restore. Used during process shutdown.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// RunNow triggers a batch immediately in the background, outside the daily
// schedule. The batch still counts as today's run.
func (s *Scheduler) RunNow() error {
	s.mu.Lock()
	campaign := s.campaign
	s.mu.Unlock()

	if campaign == nil {
		return ErrNoCampaign
	}

	s.logger.Info("manual batch triggered")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBatch(context.Background())
	}()
	return nil
}

// Status returns a copy of the current campaign (nil if none) and the next
// scheduled run time (zero if not running).
func (s *Scheduler) Status() (*models.Campaign, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.campaign == nil {
		return nil, time.Time{}
	}
	snapshot := *s.campaign
	snapshot.IsRunning = s.cancel != nil

	var next time.Time
	if s.cancel != nil {
		sendAt, err := models.ParseSendTime(s.campaign.SendTime)
		if err == nil {
			next = NextRun(s.now(), sendAt, s.campaign.WorkdaySet())
		}
	}
	return &snapshot, next
}

func (s *Scheduler) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.intervals.Tick)
	replyTicker := time.NewTicker(s.intervals.ReplyScan)
	maintTicker := time.NewTicker(s.intervals.Maintenance)
	defer ticker.Stop()
	defer replyTicker.Stop()
	defer maintTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-replyTicker.C:
			if err := s.scanner.Scan(); err != nil {
				s.logger.Warn("reply scan failed", "error", err)
			}
		case <-maintTicker.C:
			s.maintainer.Maintain()
		}
	}
}

// tick fires the daily batch once per calendar day: the weekday must be in
// the workday set, the local clock must have passed send_time, and
// last_run_date must not already be today.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	campaign := s.campaign
	if campaign == nil {
		s.mu.Unlock()
		return
	}
	snapshot := *campaign
	s.mu.Unlock()

	now := s.now()
	if !snapshot.WorkdaySet()[now.Weekday()] {
		return
	}

	sendAt, err := models.ParseSendTime(snapshot.SendTime)
	if err != nil {
		s.logger.Error("campaign has invalid send_time", "send_time", snapshot.SendTime, "error", err)
		return
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Before(dayStart.Add(sendAt)) {
		return
	}
	if snapshot.LastRunDate == now.Format("2006-01-02") {
		return
	}

	s.runBatch(ctx)
}

// runBatch dispatches one batch and records the day as done. The opened count
// captured beside the batch covers the previous day, when recipients had a
// full day to open.
func (s *Scheduler) runBatch(ctx context.Context) {
	s.mu.Lock()
	if s.campaign == nil {
		s.mu.Unlock()
		return
	}
	snapshot := *s.campaign
	s.mu.Unlock()

	countries := snapshot.TargetCountries
	if len(snapshot.TargetRegions) > 0 {
		countries = s.regions.Expand(snapshot.TargetRegions)
	}

	now := s.now()
	sent := s.dispatcher.DispatchBatch(ctx, snapshot.DailyCount, countries, snapshot.TemplateName)

	opened := 0
	if s.stats != nil {
		yesterday := now.AddDate(0, 0, -1)
		start := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, yesterday.Location())
		end := start.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		n, err := s.stats.CountOpenedBetween(start, end)
		if err != nil {
			s.logger.Warn("failed to count previous day opens", "error", err)
		} else {
			opened = n
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign == nil {
		return
	}
	s.campaign.LastRunDate = now.Format("2006-01-02")
	s.campaign.LastSentCount = sent
	s.campaign.LastOpenedCount = opened
	if err := s.store.Save(s.campaign); err != nil {
		s.logger.Error("failed to persist run state", "error", err)
	}
	s.logger.Info("daily batch complete", "sent", sent, "date", s.campaign.LastRunDate)
}

// NextRun returns the next moment at or after now that falls on a workday at
// the given time of day. Zero time if the workday set is empty.
func NextRun(now time.Time, sendAt time.Duration, workdays map[time.Weekday]bool) time.Time {
	if len(workdays) == 0 {
		return time.Time{}
	}

	for i := 0; i < 8; i++ {
		day := now.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).Add(sendAt)
		if workdays[day.Weekday()] && !candidate.Before(now) {
			return candidate
		}
	}
	return time.Time{}
}
