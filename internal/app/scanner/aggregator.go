package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/hickar/mailcount/internal/app/domain"
	"github.com/hickar/mailcount/internal/app/tally"
)

var errNoFrom = errors.New("header has no From field")

// DefaultMaxHeaderSize bounds the header bytes buffered per message.
const DefaultMaxHeaderSize = 64 << 10

// Aggregator accumulates header bytes of one message at a time and
// counts the sender domain of every message once its header is complete.
//
// Events must arrive in the order BeginMessage, Write..., EndMessage
// for each message. An Aggregator is not safe for concurrent use.
type Aggregator struct {
	counts  *tally.Counts
	maxSize int
	logger  *slog.Logger

	buf       bytes.Buffer
	seqNum    uint32
	open      bool
	truncated bool

	scanned int
	skipped int
}

func NewAggregator(maxHeaderSize int, logger *slog.Logger) *Aggregator {
	if maxHeaderSize <= 0 {
		maxHeaderSize = DefaultMaxHeaderSize
	}

	return &Aggregator{
		counts:  tally.NewCounts(),
		maxSize: maxHeaderSize,
		logger:  logger,
	}
}

// BeginMessage starts buffering the header of message seqNum.
// A message left open by a previous call is discarded.
func (a *Aggregator) BeginMessage(seqNum uint32) {
	a.buf.Reset()
	a.seqNum = seqNum
	a.open = true
	a.truncated = false
}

// Write appends a chunk of header data to the current message.
// Bytes past the size bound are dropped. Write never fails.
func (a *Aggregator) Write(chunk []byte) (int, error) {
	n := len(chunk)
	if !a.open {
		return n, nil
	}

	if room := a.maxSize - a.buf.Len(); len(chunk) > room {
		chunk = chunk[:max(room, 0)]
		a.truncated = true
	}
	a.buf.Write(chunk)
	return n, nil
}

// EndMessage parses the buffered header and counts its sender domain.
// It returns the attributed domain, or an error wrapping
// domain.ErrExtractionFailed when the message was skipped.
func (a *Aggregator) EndMessage(ctx context.Context) (string, error) {
	if !a.open {
		return "", nil
	}
	a.open = false
	a.scanned++

	if a.truncated {
		a.logger.DebugContext(ctx, "message header exceeds size limit, tail discarded",
			slog.Any("seq_num", a.seqNum),
			slog.Int("limit", a.maxSize),
		)
	}

	from, err := parseFrom(a.buf.Bytes())
	if err != nil {
		a.skipped++
		a.logger.WarnContext(ctx, "unable to parse message header",
			slog.Any("seq_num", a.seqNum),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("parse header of message %d: %w", a.seqNum, domain.ErrExtractionFailed)
	}

	d, err := domain.Extract(from)
	if err != nil {
		a.skipped++
		a.logger.WarnContext(ctx, "unable to extract domain from header",
			slog.Any("seq_num", a.seqNum),
			slog.String("from", from),
		)
		return "", fmt.Errorf("message %d: %w", a.seqNum, err)
	}

	a.counts.Add(d)
	return d, nil
}

// Report produces the sorted result for user. It is called once,
// when the whole fetch has completed.
func (a *Aggregator) Report(user string) tally.Report {
	return tally.NewReport(user, a.counts, a.scanned, a.skipped)
}

// parseFrom reads raw header bytes and returns the first "From" value
// with RFC 2047 encoded words decoded.
func parseFrom(raw []byte) (string, error) {
	// Header field fetches end with an empty line, but a bounded or
	// truncated buffer may not, and the reader needs it.
	raw = bytes.TrimRight(raw, "\r\n")
	data := make([]byte, 0, len(raw)+4)
	data = append(data, raw...)
	data = append(data, "\r\n\r\n"...)

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return "", fmt.Errorf("read header: %w", err)
	}
	if !h.Has("From") {
		return "", errNoFrom
	}

	header := mail.Header{Header: message.Header{Header: h}}
	from, err := header.Text("From")
	if err != nil {
		// Undecodable charsets still leave a usable raw value.
		from = h.Get("From")
	}
	return from, nil
}
