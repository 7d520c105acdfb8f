// Package mailconn owns the persistent SMTP and IMAP sessions. Each protocol
// has one handle and one lock; all use of a handle goes through the scoped
// With* accessors so no caller ever observes a half-initialized session.
package mailconn

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"outreach/internal/config"
	"outreach/internal/metrics"
)

// ErrNotConnected is returned by the scoped accessors when no live handle
// exists. Callers must re-attempt Ensure* before the next use; a previous
// success never guarantees a live session.
var ErrNotConnected = errors.New("mail connection not established")

// SMTPSession is the narrow surface the dispatch engine needs from an SMTP
// connection.
type SMTPSession interface {
	Noop() error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
}

// IMAPSession is the narrow surface the reply correlator needs from an IMAP
// connection.
type IMAPSession interface {
	Noop() error
	SelectInbox() error
	SearchUnseen() ([]UID, error)
	Fetch(uid UID) ([]byte, error)
	MarkSeen(uid UID) error
	Logout() error
}

// UID identifies a message within the selected mailbox.
type UID uint32

// Manager maintains one session per protocol, probing liveness before reuse
// and rebuilding dropped sessions on demand.
type Manager struct {
	dialSMTP func() (SMTPSession, error)
	dialIMAP func() (IMAPSession, error)
	logger   *slog.Logger
	metrics  *metrics.Metrics

	smtpMu sync.Mutex
	smtp   SMTPSession

	imapMu sync.Mutex
	imap   IMAPSession
}

// New creates a manager dialing real SMTP/IMAP servers from configuration.
func New(smtpCfg config.SMTPConfig, imapCfg config.IMAPConfig, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return NewWithDialers(
		smtpDialer(smtpCfg),
		imapDialer(imapCfg, smtpCfg.Username, smtpCfg.Password),
		logger, m,
	)
}

// NewWithDialers creates a manager with custom session factories.
func NewWithDialers(dialSMTP func() (SMTPSession, error), dialIMAP func() (IMAPSession, error), logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		dialSMTP: dialSMTP,
		dialIMAP: dialIMAP,
		logger:   logger.With("component", "mailconn"),
		metrics:  m,
	}
}

// EnsureSMTP verifies the SMTP session is alive, rebuilding it if the probe
// fails or no session exists. On failure the handle is left nil.
func (m *Manager) EnsureSMTP() error {
	m.smtpMu.Lock()
	defer m.smtpMu.Unlock()

	if m.smtp != nil {
		if err := m.smtp.Noop(); err == nil {
			return nil
		}
		m.logger.Info("SMTP connection dropped, reconnecting")
		_ = m.smtp.Quit()
		m.smtp = nil
		if m.metrics != nil {
			m.metrics.SMTPReconnectsTotal.Inc()
		}
	}

	session, err := m.dialSMTP()
	if err != nil {
		m.logger.Error("failed to establish SMTP connection", "error", err)
		return err
	}
	m.smtp = session
	m.logger.Info("SMTP connection established")
	return nil
}

// EnsureIMAP verifies the IMAP session is alive, rebuilding it (and
// selecting the inbox) if the probe fails or no session exists.
func (m *Manager) EnsureIMAP() error {
	m.imapMu.Lock()
	defer m.imapMu.Unlock()

	if m.imap != nil {
		if err := m.imap.Noop(); err == nil {
			return nil
		}
		m.logger.Info("IMAP connection dropped, reconnecting")
		_ = m.imap.Logout()
		m.imap = nil
		if m.metrics != nil {
			m.metrics.IMAPReconnectsTotal.Inc()
		}
	}

	session, err := m.dialIMAP()
	if err != nil {
		m.logger.Error("failed to establish IMAP connection", "error", err)
		return err
	}
	if err := session.SelectInbox(); err != nil {
		m.logger.Error("failed to select inbox", "error", err)
		_ = session.Logout()
		return err
	}
	m.imap = session
	m.logger.Info("IMAP connection established")
	return nil
}

// WithSMTP runs fn with the SMTP session under the protocol lock.
func (m *Manager) WithSMTP(fn func(SMTPSession) error) error {
	m.smtpMu.Lock()
	defer m.smtpMu.Unlock()

	if m.smtp == nil {
		return ErrNotConnected
	}
	return fn(m.smtp)
}

// WithIMAP runs fn with the IMAP session under the protocol lock. Keep fn
// short: long fetches here block the health check.
func (m *Manager) WithIMAP(fn func(IMAPSession) error) error {
	m.imapMu.Lock()
	defer m.imapMu.Unlock()

	if m.imap == nil {
		return ErrNotConnected
	}
	return fn(m.imap)
}

// DiscardSMTP drops the current SMTP session so the next EnsureSMTP rebuilds
// it. Called after a transport error mid-send.
func (m *Manager) DiscardSMTP() {
	m.smtpMu.Lock()
	defer m.smtpMu.Unlock()

	if m.smtp != nil {
		_ = m.smtp.Quit()
		m.smtp = nil
	}
}

// DiscardIMAP drops the current IMAP session.
func (m *Manager) DiscardIMAP() {
	m.imapMu.Lock()
	defer m.imapMu.Unlock()

	if m.imap != nil {
		_ = m.imap.Logout()
		m.imap = nil
	}
}

// Maintain probes both sessions, healing silent drops before they block a
// dispatch. Run on a fixed interval by the scheduler.
func (m *Manager) Maintain() {
	m.logger.Debug("running connection health check")
	if err := m.EnsureSMTP(); err != nil {
		m.logger.Warn("SMTP health check failed", "error", err)
	}
	if err := m.EnsureIMAP(); err != nil {
		m.logger.Warn("IMAP health check failed", "error", err)
	}
}
