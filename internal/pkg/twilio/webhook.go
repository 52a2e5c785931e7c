package twilio

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// InboundMessage is a parsed Twilio WhatsApp webhook payload.
// Twilio delivers webhooks as application/x-www-form-urlencoded posts.
type InboundMessage struct {
	MessageSID string
	From       string
	To         string
	Body       string
	MediaURLs  []string
	MediaTypes []string
}

// HasMedia reports whether the message carries at least one attachment.
func (m *InboundMessage) HasMedia() bool {
	return len(m.MediaURLs) > 0
}

// ParseInbound reads a Twilio webhook form post into an InboundMessage.
func ParseInbound(r *http.Request) (*InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	msg := &InboundMessage{
		MessageSID: r.PostFormValue("MessageSid"),
		From:       r.PostFormValue("From"),
		To:         r.PostFormValue("To"),
		Body:       r.PostFormValue("Body"),
	}

	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	for i := 0; i < numMedia; i++ {
		idx := strconv.Itoa(i)
		if u := r.PostFormValue("MediaUrl" + idx); u != "" {
			msg.MediaURLs = append(msg.MediaURLs, u)
			msg.MediaTypes = append(msg.MediaTypes, r.PostFormValue("MediaContentType"+idx))
		}
	}

	return msg, nil
}

var transactionIDPattern = regexp.MustCompile(`(?i)\bID[:\s]*([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// ExtractTransactionID pulls a transaction reference out of a message
// body. Operators reply with the confirmation text that includes
// "ID: <uuid>"; when absent the caller falls back to the latest
// pending payout.
func ExtractTransactionID(body string) (string, bool) {
	m := transactionIDPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
