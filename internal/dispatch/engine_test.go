package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"outreach/internal/mailconn"
	"outreach/internal/models"
	"outreach/internal/template"
)

type fakeContacts struct {
	contacts    []models.Contact
	selectLimit int
	marked      []int64
}

func (f *fakeContacts) SelectUnsent(limit int, countries []string) ([]models.Contact, error) {
	f.selectLimit = limit
	if limit > len(f.contacts) {
		limit = len(f.contacts)
	}
	return f.contacts[:limit], nil
}

func (f *fakeContacts) MarkSent(id int64) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakeTracking struct {
	records   []*models.TrackingRecord
	existing  map[string]bool
	createErr error
}

func (f *fakeTracking) Create(rec *models.TrackingRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeTracking) HasRecord(email string) (bool, error) {
	return f.existing[email], nil
}

type fakeRegistrar struct {
	registered []string
	err        error
}

func (f *fakeRegistrar) RegisterSend(emailID, recipient, name string, sentTime time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, emailID)
	return nil
}

type fakeSMTPSession struct {
	messages []string
	sendErr  error
}

func (f *fakeSMTPSession) Noop() error { return nil }

func (f *fakeSMTPSession) SendMail(from string, to []string, r io.Reader) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	data, _ := io.ReadAll(r)
	f.messages = append(f.messages, string(data))
	return nil
}

func (f *fakeSMTPSession) Quit() error { return nil }

type fakeConn struct {
	session   *fakeSMTPSession
	ensureErr error
	discards  int
}

func (f *fakeConn) EnsureSMTP() error { return f.ensureErr }

func (f *fakeConn) WithSMTP(fn func(mailconn.SMTPSession) error) error {
	return fn(f.session)
}

func (f *fakeConn) DiscardSMTP() { f.discards++ }

func newTestEngine(t *testing.T, conn *fakeConn, contacts *fakeContacts, tracking *fakeTracking, registrar *fakeRegistrar) *Engine {
	t.Helper()

	if tracking.existing == nil {
		tracking.existing = make(map[string]bool)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := Config{
		SenderEmail: "sender@example.com",
		SenderName:  "Outreach",
		Subject:     "Hello",
		TrackerURL:  "http://tracker.local",
	}
	return NewEngine(cfg, conn, contacts, tracking, registrar, template.NewStore("", logger), nil, logger, nil)
}

func TestSendOne(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{}
	tracking := &fakeTracking{}
	registrar := &fakeRegistrar{}
	engine := newTestEngine(t, conn, contacts, tracking, registrar)

	contact := models.Contact{ID: 7, Name: "Ana", Company: "Acme", Email: "ana@acme.test"}
	if err := engine.SendOne(contact, "Hi {{name}}, see {{tracker_url}}/track/{{email_id}}"); err != nil {
		t.Fatalf("SendOne failed: %v", err)
	}

	if len(conn.session.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conn.session.messages))
	}
	msg := conn.session.messages[0]
	if !strings.Contains(msg, "To: ana@acme.test") {
		t.Error("expected recipient header")
	}
	if !strings.Contains(msg, "Hi Ana") {
		t.Error("expected rendered contact name in body")
	}

	if len(tracking.records) != 1 {
		t.Fatalf("expected tracking record, got %d", len(tracking.records))
	}
	rec := tracking.records[0]
	if rec.EmailID == "" || rec.Email != "ana@acme.test" {
		t.Errorf("unexpected tracking record %+v", rec)
	}
	if !strings.Contains(msg, "Message-ID: <"+rec.EmailID+"@example.com>") {
		t.Error("expected tracking token in Message-ID")
	}
	if !strings.Contains(msg, "http://tracker.local/track/"+rec.EmailID) {
		t.Error("expected tracking pixel URL in body")
	}

	if len(contacts.marked) != 1 || contacts.marked[0] != 7 {
		t.Errorf("expected contact 7 marked sent, got %v", contacts.marked)
	}
	if len(registrar.registered) != 1 || registrar.registered[0] != rec.EmailID {
		t.Errorf("expected send registered with tracker, got %v", registrar.registered)
	}
}

func TestSendOneNoEmail(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{}
	engine := newTestEngine(t, conn, contacts, &fakeTracking{}, &fakeRegistrar{})

	err := engine.SendOne(models.Contact{ID: 1, Name: "No Address"}, "body")
	if !errors.Is(err, ErrNoEmail) {
		t.Fatalf("expected ErrNoEmail, got %v", err)
	}
	if len(conn.session.messages) != 0 || len(contacts.marked) != 0 {
		t.Error("expected no side effects for contact without email")
	}
}

func TestSendOneAlreadyTracked(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	tracking := &fakeTracking{existing: map[string]bool{"ana@acme.test": true}}
	contacts := &fakeContacts{}
	engine := newTestEngine(t, conn, contacts, tracking, &fakeRegistrar{})

	err := engine.SendOne(models.Contact{ID: 1, Email: "ana@acme.test"}, "body")
	if !errors.Is(err, ErrAlreadyTracked) {
		t.Fatalf("expected ErrAlreadyTracked, got %v", err)
	}
	if len(conn.session.messages) != 0 {
		t.Error("expected no send for already-tracked address")
	}
	if len(contacts.marked) != 0 {
		t.Error("expected contact to stay unmarked")
	}
}

func TestSendOneTransportErrorDiscardsConnection(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{sendErr: errors.New("broken pipe")}}
	contacts := &fakeContacts{}
	tracking := &fakeTracking{}
	engine := newTestEngine(t, conn, contacts, tracking, &fakeRegistrar{})

	err := engine.SendOne(models.Contact{ID: 1, Email: "ana@acme.test"}, "body")
	if err == nil {
		t.Fatal("expected send error")
	}
	if conn.discards != 1 {
		t.Errorf("expected SMTP handle to be discarded, got %d discards", conn.discards)
	}
	if len(tracking.records) != 0 || len(contacts.marked) != 0 {
		t.Error("expected no bookkeeping after failed send")
	}
}

func TestSendOneTrackingFailureDoesNotRevert(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{}
	tracking := &fakeTracking{createErr: errors.New("disk full")}
	registrar := &fakeRegistrar{}
	engine := newTestEngine(t, conn, contacts, tracking, registrar)

	if err := engine.SendOne(models.Contact{ID: 3, Email: "ana@acme.test"}, "body"); err != nil {
		t.Fatalf("expected tracking failure to be absorbed, got %v", err)
	}
	if len(contacts.marked) != 1 {
		t.Error("expected contact marked sent despite tracking write failure")
	}
	if len(registrar.registered) != 1 {
		t.Error("expected send still registered with tracker")
	}
}

func TestDispatchBatchOverfetchesAndStopsAtTarget(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{contacts: []models.Contact{
		{ID: 1, Email: "a@x.test"},
		{ID: 2, Email: "b@x.test"},
		{ID: 3, Email: "c@x.test"},
		{ID: 4, Email: "d@x.test"},
	}}
	engine := newTestEngine(t, conn, contacts, &fakeTracking{}, &fakeRegistrar{})

	sent := engine.DispatchBatch(context.Background(), 2, nil, "")
	if sent != 2 {
		t.Fatalf("expected 2 sends, got %d", sent)
	}
	if contacts.selectLimit != 6 {
		t.Errorf("expected candidate over-fetch of 6, got %d", contacts.selectLimit)
	}
	if len(conn.session.messages) != 2 {
		t.Errorf("expected exactly 2 messages, got %d", len(conn.session.messages))
	}
}

func TestDispatchBatchDeduplicatesAddresses(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{contacts: []models.Contact{
		{ID: 1, Email: "ana@acme.test"},
		{ID: 2, Email: "ANA@ACME.TEST"},
		{ID: 3, Email: "bob@acme.test"},
	}}
	engine := newTestEngine(t, conn, contacts, &fakeTracking{}, &fakeRegistrar{})

	sent := engine.DispatchBatch(context.Background(), 5, nil, "")
	if sent != 2 {
		t.Fatalf("expected case-insensitive dedup to allow 2 sends, got %d", sent)
	}
}

func TestDispatchBatchAbsorbsFailures(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{contacts: []models.Contact{
		{ID: 1, Email: ""},
		{ID: 2, Email: "tracked@acme.test"},
		{ID: 3, Email: "fresh@acme.test"},
	}}
	tracking := &fakeTracking{existing: map[string]bool{"tracked@acme.test": true}}
	engine := newTestEngine(t, conn, contacts, tracking, &fakeRegistrar{})

	sent := engine.DispatchBatch(context.Background(), 3, nil, "")
	if sent != 1 {
		t.Fatalf("expected 1 send after skips, got %d", sent)
	}
	if len(conn.session.messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(conn.session.messages))
	}
}

func TestDispatchBatchCancelledContext(t *testing.T) {
	conn := &fakeConn{session: &fakeSMTPSession{}}
	contacts := &fakeContacts{contacts: []models.Contact{
		{ID: 1, Email: "a@x.test"},
		{ID: 2, Email: "b@x.test"},
	}}
	engine := newTestEngine(t, conn, contacts, &fakeTracking{}, &fakeRegistrar{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sent := engine.DispatchBatch(ctx, 2, nil, ""); sent != 0 {
		t.Fatalf("expected no sends with cancelled context, got %d", sent)
	}
}

func TestSenderDomain(t *testing.T) {
	if got := senderDomain("user@example.com"); got != "example.com" {
		t.Errorf("expected example.com, got %q", got)
	}
	if got := senderDomain("not-an-address"); got != "localhost" {
		t.Errorf("expected localhost fallback, got %q", got)
	}
}
