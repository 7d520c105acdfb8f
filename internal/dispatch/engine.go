// Package dispatch renders, sends, and records outbound campaign email.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"outreach/internal/dkim"
	"outreach/internal/mailconn"
	"outreach/internal/metrics"
	"outreach/internal/models"
	"outreach/internal/template"
)

var (
	// ErrNoEmail is returned for contacts without an address.
	ErrNoEmail = errors.New("contact has no email address")
	// ErrAlreadyTracked is returned when a tracking record already exists
	// for the address; the send is skipped to keep delivery at-most-once.
	ErrAlreadyTracked = errors.New("address already has a tracking record")
)

// ContactStore is the recipient gate: selection and the dispatch flag.
type ContactStore interface {
	SelectUnsent(limit int, countries []string) ([]models.Contact, error)
	MarkSent(id int64) error
}

// TrackingStore records sends and answers the second at-most-once guard.
type TrackingStore interface {
	Create(rec *models.TrackingRecord) error
	HasRecord(email string) (bool, error)
}

// Registrar receives fire-and-forget send notifications (the tracker).
type Registrar interface {
	RegisterSend(emailID, recipient, name string, sentTime time.Time) error
}

// Conn is the slice of the connection manager the engine uses.
type Conn interface {
	EnsureSMTP() error
	WithSMTP(fn func(mailconn.SMTPSession) error) error
	DiscardSMTP()
}

// Config holds the static send parameters.
type Config struct {
	SenderEmail string
	SenderName  string
	Subject     string
	TrackerURL  string
	SendDelay   time.Duration
}

// Engine sends one email per contact and records the send.
type Engine struct {
	cfg       Config
	conn      Conn
	contacts  ContactStore
	tracking  TrackingStore
	registrar Registrar
	templates *template.Store
	signer    *dkim.Signer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(cfg Config, conn Conn, contacts ContactStore, tracking TrackingStore, registrar Registrar, templates *template.Store, signer *dkim.Signer, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		conn:      conn,
		contacts:  contacts,
		tracking:  tracking,
		registrar: registrar,
		templates: templates,
		signer:    signer,
		logger:    logger.With("component", "dispatch"),
		metrics:   m,
	}
}

// SendOne dispatches a single email. On transport failure the SMTP handle is
// discarded so the next ensure rebuilds it; retrying is the caller's call.
func (e *Engine) SendOne(contact models.Contact, templateContent string) error {
	if contact.Email == "" {
		return ErrNoEmail
	}

	tracked, err := e.tracking.HasRecord(contact.Email)
	if err != nil {
		e.logger.Error("failed to check tracking record", "email", contact.Email, "error", err)
	} else if tracked {
		e.logger.Info("address already contacted, skipping", "email", contact.Email)
		return ErrAlreadyTracked
	}

	emailID := uuid.New().String()

	html := template.Render(templateContent, map[string]string{
		"name":        contact.Name,
		"tracker_url": e.cfg.TrackerURL,
		"email_id":    emailID,
	})

	msg := buildMessage(e.cfg.SenderName, e.cfg.SenderEmail, contact.Email, e.cfg.Subject, emailID, html)
	if e.signer != nil {
		signed, err := e.signer.Sign(msg)
		if err != nil {
			e.logger.Warn("DKIM signing failed, sending unsigned", "email_id", emailID, "error", err)
		} else {
			msg = signed
		}
	}

	if err := e.conn.EnsureSMTP(); err != nil {
		if e.metrics != nil {
			e.metrics.EmailsFailedTotal.Inc()
		}
		return err
	}

	err = e.conn.WithSMTP(func(s mailconn.SMTPSession) error {
		return s.SendMail(e.cfg.SenderEmail, []string{contact.Email}, strings.NewReader(string(msg)))
	})
	if err != nil {
		e.logger.Error("failed to send email", "email", contact.Email, "error", err)
		e.conn.DiscardSMTP()
		if e.metrics != nil {
			e.metrics.EmailsFailedTotal.Inc()
		}
		return err
	}

	sentTime := time.Now()
	e.logger.Info("email sent", "email", contact.Email, "email_id", emailID)
	if e.metrics != nil {
		e.metrics.EmailsSentTotal.Inc()
	}

	// A failed tracking write is logged, never retried: the send already
	// happened and must not be reverted or repeated.
	if err := e.tracking.Create(&models.TrackingRecord{
		EmailID:     emailID,
		Company:     contact.Company,
		ContactName: contact.Name,
		Email:       contact.Email,
		SentTime:    sentTime,
	}); err != nil {
		e.logger.Error("failed to create tracking record", "email_id", emailID, "error", err)
	}

	if err := e.contacts.MarkSent(contact.ID); err != nil {
		e.logger.Error("failed to mark contact sent", "contact_id", contact.ID, "error", err)
	}

	if err := e.registrar.RegisterSend(emailID, contact.Email, contact.Name, sentTime); err != nil {
		e.logger.Warn("failed to register send with tracker", "email_id", emailID, "error", err)
	}

	return nil
}

// DispatchBatch sends to unsent contacts until target successes or the
// candidate pool runs out. Candidates are over-fetched 3x to absorb skips and
// failures, and an in-memory address set guards against duplicates within
// the batch on top of the store-level guards.
func (e *Engine) DispatchBatch(ctx context.Context, target int, countries []string, templateName string) int {
	if target <= 0 {
		return 0
	}

	templateContent := e.templates.Load(templateName)

	candidates, err := e.contacts.SelectUnsent(target*3, countries)
	if err != nil {
		e.logger.Error("failed to select contacts", "error", err)
		return 0
	}
	if len(candidates) == 0 {
		e.logger.Info("no eligible contacts for dispatch")
		return 0
	}

	e.logger.Info("starting dispatch batch", "target", target, "candidates", len(candidates))
	if e.metrics != nil {
		e.metrics.BatchesTotal.Inc()
	}

	seen := make(map[string]struct{}, len(candidates))
	sent := 0

	for i, contact := range candidates {
		if ctx.Err() != nil {
			break
		}

		key := strings.ToLower(contact.Email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := e.SendOne(contact, templateContent); err == nil {
			sent++
		}
		if sent >= target {
			break
		}

		// Deliberate throttle between sends, not a correctness requirement.
		if i < len(candidates)-1 && e.cfg.SendDelay > 0 {
			select {
			case <-ctx.Done():
				return sent
			case <-time.After(e.cfg.SendDelay):
			}
		}
	}

	e.logger.Info("dispatch batch finished", "sent", sent, "target", target)
	return sent
}
