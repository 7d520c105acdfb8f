package dispatch

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// buildMessage assembles the raw RFC 5322 message. The Message-ID carries the
// tracking token as its local part so replies can be correlated later.
func buildMessage(senderName, senderEmail, recipient, subject, emailID, htmlBody string) []byte {
	var buf bytes.Buffer

	from := senderEmail
	if senderName != "" {
		from = fmt.Sprintf("%s <%s>", senderName, senderEmail)
	}

	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", emailID, senderDomain(senderEmail)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// senderDomain extracts the domain of the sender address for the Message-ID.
func senderDomain(senderEmail string) string {
	if at := strings.LastIndex(senderEmail, "@"); at >= 0 && at < len(senderEmail)-1 {
		return senderEmail[at+1:]
	}
	return "localhost"
}
