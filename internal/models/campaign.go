package models

import (
	"fmt"
	"strings"
	"time"
)

// Weekday abbreviations accepted in a campaign's workday set, in schedule
// order starting from Monday.
var WeekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Campaign is the single live campaign configuration. At most one campaign
// has IsRunning=true; the scheduler owns all mutation.
type Campaign struct {
	ID              int64    `json:"id"`
	IsRunning       bool     `json:"is_running"`
	DailyCount      int      `json:"daily_count"`
	TargetCountries []string `json:"target_countries"`
	TargetRegions   []string `json:"target_regions"`
	SendTime        string   `json:"send_time"` // "HH:MM", 24-hour
	Workdays        []string `json:"workdays"`
	TemplateName    string   `json:"template_name"`
	LastRunDate     string   `json:"last_run_date"` // "YYYY-MM-DD", empty if never run
	LastSentCount   int      `json:"last_sent_count"`
	LastOpenedCount int      `json:"last_opened_count"`
}

// Validate checks the fields a caller controls before the campaign is
// persisted. It rejects rather than normalizing: no partial state change on
// a bad configuration.
func (c *Campaign) Validate() error {
	if c.DailyCount <= 0 {
		return fmt.Errorf("daily_count must be positive, got %d", c.DailyCount)
	}
	if _, err := ParseSendTime(c.SendTime); err != nil {
		return err
	}
	if len(c.Workdays) == 0 {
		return fmt.Errorf("workdays must not be empty")
	}
	for _, d := range c.Workdays {
		if !validWeekday(d) {
			return fmt.Errorf("invalid workday %q", d)
		}
	}
	return nil
}

// WorkdaySet returns the workdays as a set of time.Weekday values.
func (c *Campaign) WorkdaySet() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(c.Workdays))
	for _, d := range c.Workdays {
		if wd, ok := weekdayByName(d); ok {
			set[wd] = true
		}
	}
	return set
}

// ParseSendTime parses an "HH:MM" 24-hour clock value into hour and minute.
func ParseSendTime(s string) (time.Duration, error) {
	var hour, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &min); err != nil {
		return 0, fmt.Errorf("invalid send_time %q: expected HH:MM", s)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid send_time %q: out of range", s)
	}
	return time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute, nil
}

func validWeekday(name string) bool {
	_, ok := weekdayByName(name)
	return ok
}

func weekdayByName(name string) (time.Weekday, bool) {
	switch strings.ToLower(name) {
	case "mon":
		return time.Monday, true
	case "tue":
		return time.Tuesday, true
	case "wed":
		return time.Wednesday, true
	case "thu":
		return time.Thursday, true
	case "fri":
		return time.Friday, true
	case "sat":
		return time.Saturday, true
	case "sun":
		return time.Sunday, true
	}
	return 0, false
}
