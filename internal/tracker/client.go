package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"outreach/internal/models"
)

// Client talks to a running tracker service. The dispatch engine registers
// sends through it, the reply correlator reports replies, and the stats
// aggregator uses it as the degraded fallback.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// RegisterSend reports a successful dispatch to the tracker.
func (c *Client) RegisterSend(emailID, recipient, name string, sentTime time.Time) error {
	return c.post("/track/register", RegisterRequest{
		EmailID:   emailID,
		Recipient: recipient,
		Name:      name,
		SentTime:  sentTime.Format("2006-01-02 15:04:05"),
	})
}

// ReportReply delivers a correlated reply to the tracker.
func (c *Client) ReportReply(report models.ReplyReport) error {
	return c.post("/reply", ReplyRequest{
		EmailID: report.EmailID,
		From:    report.From,
		Content: report.Content,
	})
}

// Stats returns the tracker's lightweight totals.
func (c *Client) Stats() (sent, opened, replied int, err error) {
	resp, err := c.http.Get(c.baseURL + "/stats")
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to fetch tracker stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, 0, fmt.Errorf("tracker stats returned status %d", resp.StatusCode)
	}

	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to decode tracker stats: %w", err)
	}
	return stats.Sent, stats.Opened, stats.Replied, nil
}

func (c *Client) post(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to call tracker %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tracker %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
