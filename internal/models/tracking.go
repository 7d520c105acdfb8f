package models

import "time"

// TrackingRecord is created exactly once per successful send and mutated at
// most twice afterwards: one open transition and one reply transition.
type TrackingRecord struct {
	EmailID     string     `json:"email_id"`
	Company     string     `json:"company"`
	ContactName string     `json:"contact_name"`
	Email       string     `json:"email"`
	SentTime    time.Time  `json:"sent_time"`
	IsOpened    bool       `json:"is_opened"`
	OpenTime    *time.Time `json:"open_time,omitempty"`
	IsReplied   bool       `json:"is_replied"`
	ReplyTime   *time.Time `json:"reply_time,omitempty"`
}

// StatsSummary holds aggregated engagement counts and rates.
type StatsSummary struct {
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Replied   int     `json:"replied"`
	OpenRate  float64 `json:"open_rate"`
	ReplyRate float64 `json:"reply_rate"`
}

// ReplyReport is delivered to the reply sink when an inbound message is
// correlated with a previous send.
type ReplyReport struct {
	EmailID string `json:"email_id"`
	From    string `json:"from"`
	Content string `json:"content"`
}
