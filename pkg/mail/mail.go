// Package mail fetches inbox messages over IMAP so they can be scanned
// without copy-pasting. Credentials are used for the single connection and
// never persisted.
package mail

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// providers maps a provider keyword to its IMAP endpoint.
var providers = map[string]string{
	"gmail":   "imap.gmail.com:993",
	"outlook": "outlook.office365.com:993",
	"yahoo":   "imap.mail.yahoo.com:993",
}

const defaultProvider = "gmail"

// previewLen bounds the message preview returned in listings.
const previewLen = 150

// Message is one fetched inbox message, body included, ready for scanning.
type Message struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Preview string `json:"preview"`
	Time    string `json:"time"`
	Status  string `json:"status"`
}

// Credentials identify one mailbox. Provider is a keyword (gmail, outlook,
// yahoo); unknown values fall back to gmail.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider"`
}

func serverFor(provider string) string {
	if addr, ok := providers[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return addr
	}
	return providers[defaultProvider]
}

func dial(creds Credentials) (*imapclient.Client, error) {
	addr := serverFor(creds.Provider)
	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	user := strings.TrimSpace(creds.Email)
	pass := strings.TrimSpace(creds.Password)
	if err := client.Login(user, pass).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	return client, nil
}

// TestConnection verifies that the credentials can open the inbox.
func TestConnection(creds Credentials) error {
	client, err := dial(creds)
	if err != nil {
		return err
	}
	defer client.Close()
	defer client.Logout()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}
	return nil
}

// FetchRecent returns up to limit most-recent inbox messages, newest first.
func FetchRecent(creds Credentials, limit int) ([]Message, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	client, err := dial(creds)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer client.Logout()

	mbox, err := client.Select("INBOX", nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	if mbox.NumMessages == 0 {
		return []Message{}, nil
	}

	// Highest sequence numbers are the newest messages.
	last := mbox.NumMessages
	first := uint32(1)
	if last > uint32(limit) {
		first = last - uint32(limit) + 1
	}
	var seqSet imap.SeqSet
	seqSet.AddRange(first, last)

	bodySection := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText}
	fetched, err := client.Fetch(seqSet, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	messages := make([]Message, 0, len(fetched))
	for i := len(fetched) - 1; i >= 0; i-- {
		messages = append(messages, toMessage(fetched[i], bodySection))
	}
	log.Printf("[MAIL] Fetched %d messages", len(messages))
	return messages, nil
}

func toMessage(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) Message {
	msg := Message{
		ID:     fmt.Sprintf("%d", buf.UID),
		Status: "read",
	}

	if env := buf.Envelope; env != nil {
		msg.Subject = env.Subject
		if len(env.From) > 0 {
			msg.From = env.From[0].Addr()
		}
		if !env.Date.IsZero() {
			msg.Time = env.Date.Format(time.DateTime)
		}
	}

	seen := false
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			seen = true
			break
		}
	}
	if !seen {
		msg.Status = "unread"
	}

	msg.Body = strings.TrimSpace(string(buf.FindBodySection(section)))
	msg.Preview = preview(msg.Body)
	return msg
}

func preview(body string) string {
	if len(body) <= previewLen {
		return body
	}
	return body[:previewLen] + "..."
}
