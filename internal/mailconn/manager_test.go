package mailconn

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
)

type fakeSMTP struct {
	noopErr  error
	sendErr  error
	noops    int
	sent     int
	quits    int
}

func (f *fakeSMTP) Noop() error { f.noops++; return f.noopErr }
func (f *fakeSMTP) SendMail(from string, to []string, r io.Reader) error {
	f.sent++
	return f.sendErr
}
func (f *fakeSMTP) Quit() error { f.quits++; return nil }

type fakeIMAP struct {
	noopErr   error
	selectErr error
	selects   int
	logouts   int
}

func (f *fakeIMAP) Noop() error                 { return f.noopErr }
func (f *fakeIMAP) SelectInbox() error          { f.selects++; return f.selectErr }
func (f *fakeIMAP) SearchUnseen() ([]UID, error) { return nil, nil }
func (f *fakeIMAP) Fetch(uid UID) ([]byte, error) { return nil, nil }
func (f *fakeIMAP) MarkSeen(uid UID) error      { return nil }
func (f *fakeIMAP) Logout() error               { f.logouts++; return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(smtpSessions []*fakeSMTP, smtpErrs []error, imapSessions []*fakeIMAP, imapErrs []error) *Manager {
	smtpIdx, imapIdx := 0, 0

	dialSMTP := func() (SMTPSession, error) {
		i := smtpIdx
		smtpIdx++
		if i < len(smtpErrs) && smtpErrs[i] != nil {
			return nil, smtpErrs[i]
		}
		return smtpSessions[i], nil
	}
	dialIMAP := func() (IMAPSession, error) {
		i := imapIdx
		imapIdx++
		if i < len(imapErrs) && imapErrs[i] != nil {
			return nil, imapErrs[i]
		}
		return imapSessions[i], nil
	}

	return NewWithDialers(dialSMTP, dialIMAP, testLogger(), nil)
}

func TestEnsureSMTPCreates(t *testing.T) {
	session := &fakeSMTP{}
	m := newTestManager([]*fakeSMTP{session}, nil, nil, nil)

	if err := m.EnsureSMTP(); err != nil {
		t.Fatalf("EnsureSMTP failed: %v", err)
	}

	// A live session is probed, not re-dialed
	if err := m.EnsureSMTP(); err != nil {
		t.Fatalf("second EnsureSMTP failed: %v", err)
	}
	if session.noops != 1 {
		t.Errorf("expected 1 probe of existing session, got %d", session.noops)
	}
}

func TestEnsureSMTPRebuildsOnProbeFailure(t *testing.T) {
	dead := &fakeSMTP{noopErr: errors.New("connection reset")}
	fresh := &fakeSMTP{}
	m := newTestManager([]*fakeSMTP{dead, fresh}, nil, nil, nil)

	if err := m.EnsureSMTP(); err != nil {
		t.Fatalf("EnsureSMTP failed: %v", err)
	}
	if err := m.EnsureSMTP(); err != nil {
		t.Fatalf("EnsureSMTP after drop failed: %v", err)
	}

	if dead.quits != 1 {
		t.Errorf("expected dead session to be quit, got %d quits", dead.quits)
	}

	// The fresh session should now serve sends
	err := m.WithSMTP(func(s SMTPSession) error {
		return s.SendMail("a@example.com", []string{"b@example.com"}, nil)
	})
	if err != nil {
		t.Fatalf("WithSMTP failed: %v", err)
	}
	if fresh.sent != 1 {
		t.Errorf("expected send on fresh session, got %d", fresh.sent)
	}
}

func TestEnsureSMTPDialFailureLeavesNilHandle(t *testing.T) {
	m := newTestManager(nil, []error{errors.New("dial failed")}, nil, nil)

	if err := m.EnsureSMTP(); err == nil {
		t.Fatal("expected EnsureSMTP to fail")
	}

	if err := m.WithSMTP(func(s SMTPSession) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestWithSMTPBeforeEnsure(t *testing.T) {
	m := newTestManager(nil, nil, nil, nil)

	if err := m.WithSMTP(func(s SMTPSession) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDiscardSMTP(t *testing.T) {
	session := &fakeSMTP{}
	m := newTestManager([]*fakeSMTP{session}, nil, nil, nil)

	if err := m.EnsureSMTP(); err != nil {
		t.Fatalf("EnsureSMTP failed: %v", err)
	}

	m.DiscardSMTP()

	if session.quits != 1 {
		t.Errorf("expected discarded session to be quit, got %d", session.quits)
	}
	if err := m.WithSMTP(func(s SMTPSession) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after discard, got %v", err)
	}
}

func TestEnsureIMAPSelectsInbox(t *testing.T) {
	session := &fakeIMAP{}
	m := newTestManager(nil, nil, []*fakeIMAP{session}, nil)

	if err := m.EnsureIMAP(); err != nil {
		t.Fatalf("EnsureIMAP failed: %v", err)
	}
	if session.selects != 1 {
		t.Errorf("expected inbox select on creation, got %d", session.selects)
	}
}

func TestEnsureIMAPSelectFailure(t *testing.T) {
	session := &fakeIMAP{selectErr: errors.New("no such mailbox")}
	m := newTestManager(nil, nil, []*fakeIMAP{session}, nil)

	if err := m.EnsureIMAP(); err == nil {
		t.Fatal("expected EnsureIMAP to fail on select error")
	}
	if session.logouts != 1 {
		t.Errorf("expected failed session to be logged out, got %d", session.logouts)
	}
	if err := m.WithIMAP(func(s IMAPSession) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestEnsureIMAPRebuildsOnProbeFailure(t *testing.T) {
	dead := &fakeIMAP{noopErr: errors.New("connection reset")}
	fresh := &fakeIMAP{}
	m := newTestManager(nil, nil, []*fakeIMAP{dead, fresh}, nil)

	if err := m.EnsureIMAP(); err != nil {
		t.Fatalf("EnsureIMAP failed: %v", err)
	}
	if err := m.EnsureIMAP(); err != nil {
		t.Fatalf("EnsureIMAP after drop failed: %v", err)
	}
	if dead.logouts != 1 {
		t.Errorf("expected dead session logout, got %d", dead.logouts)
	}
	if fresh.selects != 1 {
		t.Errorf("expected fresh session inbox select, got %d", fresh.selects)
	}
}

func TestMaintainHealsBothProtocols(t *testing.T) {
	smtpSession := &fakeSMTP{}
	imapSession := &fakeIMAP{}
	m := newTestManager([]*fakeSMTP{smtpSession}, nil, []*fakeIMAP{imapSession}, nil)

	m.Maintain()

	if err := m.WithSMTP(func(s SMTPSession) error { return nil }); err != nil {
		t.Errorf("expected live SMTP session after Maintain: %v", err)
	}
	if err := m.WithIMAP(func(s IMAPSession) error { return nil }); err != nil {
		t.Errorf("expected live IMAP session after Maintain: %v", err)
	}
}
