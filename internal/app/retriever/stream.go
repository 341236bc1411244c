package retriever

import (
	"strings"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hickar/mailcount/internal/app/mailer"
)

type headerStream struct {
	cmd *imapclient.FetchCommand
}

// Next returns the header section of the next fetched message.
// Messages the server returned without a header section are
// delivered with an empty header.
func (s *headerStream) Next() *mailer.HeaderMessage {
	msg := s.cmd.Next()
	if msg == nil {
		return nil
	}

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		section, ok := item.(imapclient.FetchItemDataBodySection)
		if !ok {
			continue
		}
		if section.Literal == nil {
			break
		}
		return &mailer.HeaderMessage{SeqNum: msg.SeqNum, Header: section.Literal}
	}

	return &mailer.HeaderMessage{SeqNum: msg.SeqNum, Header: strings.NewReader("")}
}

func (s *headerStream) Close() error {
	return s.cmd.Close()
}

type emptyStream struct{}

func (emptyStream) Next() *mailer.HeaderMessage { return nil }

func (emptyStream) Close() error { return nil }
