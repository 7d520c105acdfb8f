package replies

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// maxBodyChars bounds the reply excerpt forwarded to the tracker.
const maxBodyChars = 200

// Reply is the parsed result of one inbound message.
type Reply struct {
	Token string
	From  string
	Body  string
}

// parseReply extracts the threading token, sender address, and a bounded body
// excerpt from a raw message. An empty Token means the message carried no
// usable threading header.
func parseReply(raw []byte) (Reply, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to parse message: %w", err)
	}

	reply := Reply{
		Token: threadToken(mr.Header.Get("In-Reply-To"), mr.Header.Get("References")),
		From:  fromAddress(mr),
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			body, _ := io.ReadAll(part.Body)
			reply.Body = truncate(string(body), maxBodyChars)
			break
		}
	}

	return reply, nil
}

// threadToken resolves the tracking token a reply threads back to:
// In-Reply-To wins, otherwise the last References entry, then the local part
// of the resolved message id.
func threadToken(inReplyTo, references string) string {
	ref := strings.TrimSpace(inReplyTo)
	if ref == "" {
		fields := strings.Fields(references)
		if len(fields) > 0 {
			ref = fields[len(fields)-1]
		}
	}
	if ref == "" {
		return ""
	}

	ref = strings.Trim(ref, "<>")
	if at := strings.Index(ref, "@"); at >= 0 {
		ref = ref[:at]
	}
	return ref
}

func fromAddress(mr *mail.Reader) string {
	addrs, err := mr.Header.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
