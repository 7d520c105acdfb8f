package mailconn

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"outreach/internal/config"
)

// smtpDialer builds the real SMTP session factory: implicit TLS, PLAIN auth.
func smtpDialer(cfg config.SMTPConfig) func() (SMTPSession, error) {
	return func() (SMTPSession, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

		tlsConfig := &tls.Config{ServerName: cfg.Host}
		if cfg.SkipTLSVerify {
			tlsConfig.InsecureSkipVerify = true
		}

		client, err := smtp.DialTLS(addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("connecting to SMTP %s: %w", addr, err)
		}

		if err := client.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
			_ = client.Quit()
			return nil, fmt.Errorf("SMTP authentication failed for %s: %w", cfg.Username, err)
		}

		return client, nil
	}
}
