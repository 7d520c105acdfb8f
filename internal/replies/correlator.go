// Package replies scans the inbox for responses to campaign email and
// reports them against the tracking token carried in the threading headers.
package replies

import (
	"log/slog"

	"outreach/internal/mailconn"
	"outreach/internal/metrics"
	"outreach/internal/models"
)

// Sink receives correlated replies, normally the tracker client.
type Sink interface {
	ReportReply(report models.ReplyReport) error
}

// Conn is the slice of the connection manager the correlator uses.
type Conn interface {
	EnsureIMAP() error
	WithIMAP(fn func(mailconn.IMAPSession) error) error
	DiscardIMAP()
}

// Correlator walks unseen inbox messages and resolves which campaign email
// each one answers.
type Correlator struct {
	conn    Conn
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCorrelator(conn Conn, sink Sink, logger *slog.Logger, m *metrics.Metrics) *Correlator {
	return &Correlator{
		conn:    conn,
		sink:    sink,
		logger:  logger.With("component", "replies"),
		metrics: m,
	}
}

// Scan processes every unseen inbox message once. Messages are marked seen
// whether or not they correlate, so each is inspected exactly once; a
// transport error discards the IMAP handle and ends the scan early.
func (c *Correlator) Scan() error {
	if err := c.conn.EnsureIMAP(); err != nil {
		return err
	}

	var uids []mailconn.UID
	err := c.conn.WithIMAP(func(s mailconn.IMAPSession) error {
		if err := s.SelectInbox(); err != nil {
			return err
		}
		found, err := s.SearchUnseen()
		if err != nil {
			return err
		}
		uids = found
		return nil
	})
	if err != nil {
		c.logger.Error("failed to search inbox", "error", err)
		c.conn.DiscardIMAP()
		return err
	}

	if len(uids) == 0 {
		c.logger.Debug("no unseen messages")
		return nil
	}
	c.logger.Info("scanning unseen messages", "count", len(uids))

	for _, uid := range uids {
		var raw []byte
		err := c.conn.WithIMAP(func(s mailconn.IMAPSession) error {
			data, err := s.Fetch(uid)
			if err != nil {
				return err
			}
			raw = data
			return nil
		})
		if err != nil {
			c.logger.Error("failed to fetch message", "uid", uid, "error", err)
			c.conn.DiscardIMAP()
			return err
		}

		c.process(uid, raw)

		err = c.conn.WithIMAP(func(s mailconn.IMAPSession) error {
			return s.MarkSeen(uid)
		})
		if err != nil {
			c.logger.Error("failed to mark message seen", "uid", uid, "error", err)
			c.conn.DiscardIMAP()
			return err
		}
	}

	return nil
}

// process parses one message outside the connection lock and reports it.
func (c *Correlator) process(uid mailconn.UID, raw []byte) {
	reply, err := parseReply(raw)
	if err != nil {
		c.logger.Warn("failed to parse inbox message", "uid", uid, "error", err)
		return
	}
	if reply.Token == "" {
		c.logger.Debug("message carries no threading headers", "uid", uid, "from", reply.From)
		return
	}

	c.logger.Info("reply correlated", "uid", uid, "email_id", reply.Token, "from", reply.From)

	err = c.sink.ReportReply(models.ReplyReport{
		EmailID: reply.Token,
		From:    reply.From,
		Content: reply.Body,
	})
	if err != nil {
		c.logger.Error("failed to report reply", "email_id", reply.Token, "error", err)
	}
}
