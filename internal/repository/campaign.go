package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"outreach/internal/models"
)

// CampaignRepository persists the single live campaign configuration. The
// scheduler owns all mutation; there is at most one row with is_running=1.
type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Load returns the most recent campaign configuration, or nil if none has
// ever been saved.
func (r *CampaignRepository) Load() (*models.Campaign, error) {
	c := &models.Campaign{}
	var countries, regions, lastRun sql.NullString
	var workdays string

	err := r.db.QueryRow(`
		SELECT id, is_running, daily_count, target_countries, target_regions,
			send_time, workdays, template_name, last_run_date, last_sent_count, last_opened_count
		FROM task_scheduler ORDER BY id DESC LIMIT 1`,
	).Scan(&c.ID, &c.IsRunning, &c.DailyCount, &countries, &regions,
		&c.SendTime, &workdays, &c.TemplateName, &lastRun, &c.LastSentCount, &c.LastOpenedCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	c.TargetCountries = decodeStrings(countries.String)
	c.TargetRegions = decodeStrings(regions.String)
	c.LastRunDate = lastRun.String
	if workdays != "" {
		c.Workdays = strings.Split(workdays, ",")
	}
	return c, nil
}

// Save upserts the campaign configuration.
func (r *CampaignRepository) Save(c *models.Campaign) error {
	countries, err := encodeStrings(c.TargetCountries)
	if err != nil {
		return err
	}
	regions, err := encodeStrings(c.TargetRegions)
	if err != nil {
		return err
	}
	workdays := strings.Join(c.Workdays, ",")

	if c.ID == 0 {
		res, err := r.db.Exec(`
			INSERT INTO task_scheduler (is_running, daily_count, target_countries, target_regions,
				send_time, workdays, template_name, last_run_date, last_sent_count, last_opened_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.IsRunning, c.DailyCount, countries, regions,
			c.SendTime, workdays, c.TemplateName, c.LastRunDate, c.LastSentCount, c.LastOpenedCount,
		)
		if err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}
		c.ID, _ = res.LastInsertId()
		return nil
	}

	_, err = r.db.Exec(`
		UPDATE task_scheduler SET is_running = ?, daily_count = ?, target_countries = ?, target_regions = ?,
			send_time = ?, workdays = ?, template_name = ?, last_run_date = ?,
			last_sent_count = ?, last_opened_count = ?, updated_at = ?
		WHERE id = ?`,
		c.IsRunning, c.DailyCount, countries, regions,
		c.SendTime, workdays, c.TemplateName, c.LastRunDate,
		c.LastSentCount, c.LastOpenedCount, time.Now(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
