package mailer

import (
	"io"
)

// HeaderFields lists the header fields requested for every message.
var HeaderFields = []string{"FROM", "TO", "SUBJECT", "DATE"}

// DefaultMailbox is opened when an account does not name one.
const DefaultMailbox = "INBOX"

// HeaderMessage is a single message delivered by a header fetch.
// Header must be read to EOF before the next message is requested.
type HeaderMessage struct {
	SeqNum uint32
	Header io.Reader
}

// HeaderStream delivers fetched messages one by one.
type HeaderStream interface {
	// Next returns the next message or nil once the fetch is complete.
	Next() *HeaderMessage
	// Close releases the stream and reports any error the fetch ended with.
	Close() error
}

// MailboxStatus describes a mailbox right after it was opened.
type MailboxStatus struct {
	Name        string
	NumMessages uint32
	UIDValidity uint32
	ReadOnly    bool
}
