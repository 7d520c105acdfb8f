package mailconn

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"outreach/internal/config"
)

// imapDialer builds the real IMAP session factory: implicit TLS, login with
// the mailbox credentials.
func imapDialer(cfg config.IMAPConfig, username, password string) func() (IMAPSession, error) {
	return func() (IMAPSession, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

		tlsConfig := &tls.Config{ServerName: cfg.Host}
		if cfg.SkipTLSVerify {
			tlsConfig.InsecureSkipVerify = true
		}

		client, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsConfig})
		if err != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
		}

		if err := client.Login(username, password).Wait(); err != nil {
			_ = client.Logout().Wait()
			return nil, fmt.Errorf("IMAP authentication failed for %s: %w", username, err)
		}

		return &imapSession{client: client}, nil
	}
}

// imapSession adapts the go-imap v2 client to the narrow IMAPSession surface.
type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) Noop() error {
	return s.client.Noop().Wait()
}

func (s *imapSession) SelectInbox() error {
	if _, err := s.client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}
	return nil
}

func (s *imapSession) SearchUnseen() ([]UID, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	var uids []UID
	for _, uid := range data.AllUIDs() {
		uids = append(uids, UID(uid))
	}
	return uids, nil
}

// Fetch returns the raw RFC 822 message. Peek keeps the Seen flag untouched;
// the caller decides when a message counts as scanned via MarkSeen.
func (s *imapSession) Fetch(uid UID) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(uid UID) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	storeCmd := s.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	return storeCmd.Close()
}

func (s *imapSession) Logout() error {
	return s.client.Logout().Wait()
}
