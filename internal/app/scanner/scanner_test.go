package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/mailcount/internal/app/domain"
	"github.com/hickar/mailcount/internal/app/mailer"
	"github.com/hickar/mailcount/internal/app/tally"
)

type fakeStream struct {
	messages []*mailer.HeaderMessage
	closeErr error
	closed   bool
}

func (s *fakeStream) Next() *mailer.HeaderMessage {
	if len(s.messages) == 0 {
		return nil
	}
	msg := s.messages[0]
	s.messages = s.messages[1:]
	return msg
}

func (s *fakeStream) Close() error {
	s.closed = true
	return s.closeErr
}

func header(from string) string {
	return "Date: Mon, 7 Feb 1994 21:52:25 -0800\r\n" +
		"From: " + from + "\r\n" +
		"Subject: test\r\n" +
		"To: me@example.com\r\n\r\n"
}

func newStream(headers ...string) *fakeStream {
	s := &fakeStream{}
	for i, h := range headers {
		s.messages = append(s.messages, &mailer.HeaderMessage{
			SeqNum: uint32(i + 1),
			Header: strings.NewReader(h),
		})
	}
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanCountsDomains(t *testing.T) {
	stream := newStream(header("<a@x.com>"), header("<b@x.com>"), header("<c@y.com>"))

	report, err := New(Options{}, discardLogger()).Scan(context.Background(), "me@example.com", stream)
	require.NoError(t, err)

	assert.Equal(t, []tally.Entry{{Domain: "x.com", Count: 2}, {Domain: "y.com", Count: 1}}, report.Entries)
	assert.Equal(t, "me@example.com", report.User)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 0, report.Skipped)
	assert.True(t, stream.closed)
}

func TestScanEmptyMailbox(t *testing.T) {
	stream := newStream()

	report, err := New(Options{}, discardLogger()).Scan(context.Background(), "me@example.com", stream)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Zero(t, report.Scanned)
	assert.True(t, stream.closed)
}

func TestScanSkipsUnparsableSenders(t *testing.T) {
	stream := newStream(
		header("<a@x.com>"),
		header("Mailer Daemon"),
		"Subject: no sender\r\n\r\n",
		"",
		header("c@y.co.uk"),
	)

	report, err := New(Options{}, discardLogger()).Scan(context.Background(), "me", stream)
	require.NoError(t, err)

	assert.Equal(t, []tally.Entry{{Domain: "x.com", Count: 1}, {Domain: "y.co.uk", Count: 1}}, report.Entries)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, report.Scanned-report.Skipped, report.Counted)
}

func TestScanChunkBoundaryInsensitive(t *testing.T) {
	headers := []string{
		header(`"Jane" <jane@Sub.Example.COM>`),
		header("news@mail.bbc.co.uk"),
		header("<a@x.com>"),
		header("=?UTF-8?B?SsO8cmdlbg==?= <j@example.com>"),
		header("Folded\r\n <folded@y.org>"),
		header("nobody"),
	}

	want, err := New(Options{}, discardLogger()).Scan(context.Background(), "me", newStream(headers...))
	require.NoError(t, err)
	require.Equal(t, []tally.Entry{
		{Domain: "example.com", Count: 2},
		{Domain: "bbc.co.uk", Count: 1},
		{Domain: "x.com", Count: 1},
		{Domain: "y.org", Count: 1},
	}, want.Entries)

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		t.Run(fmt.Sprintf("Chunk_%d", size), func(t *testing.T) {
			got, err := New(Options{ChunkSize: size}, discardLogger()).Scan(context.Background(), "me", newStream(headers...))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("OneByteReader", func(t *testing.T) {
		stream := newStream(headers...)
		for _, msg := range stream.messages {
			msg.Header = iotest.OneByteReader(msg.Header)
		}
		got, err := New(Options{}, discardLogger()).Scan(context.Background(), "me", stream)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestScanFetchError(t *testing.T) {
	stream := newStream(header("<a@x.com>"))
	stream.closeErr = errors.New("connection reset")

	report, err := New(Options{}, discardLogger()).Scan(context.Background(), "me", stream)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, []tally.Entry{{Domain: "x.com", Count: 1}}, report.Entries)
}

func TestScanReadErrorKeepsBufferedHeader(t *testing.T) {
	stream := &fakeStream{messages: []*mailer.HeaderMessage{{
		SeqNum: 1,
		Header: io.MultiReader(
			strings.NewReader("From: <a@x.com>\r\nSubject: cut"),
			iotest.ErrReader(errors.New("literal truncated")),
		),
	}}}

	report, err := New(Options{}, discardLogger()).Scan(context.Background(), "me", stream)
	require.NoError(t, err)
	assert.Equal(t, []tally.Entry{{Domain: "x.com", Count: 1}}, report.Entries)
}

func TestScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := newStream(header("<a@x.com>"))
	report, err := New(Options{}, discardLogger()).Scan(ctx, "me", stream)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Entries)
	assert.True(t, stream.closed)
}

func TestAggregatorEvents(t *testing.T) {
	agg := NewAggregator(0, discardLogger())
	ctx := context.Background()

	agg.BeginMessage(1)
	for _, part := range []string{"Fr", "om: Jane <ja", "ne@exa", "mple.com>\r", "\n\r\n"} {
		_, _ = agg.Write([]byte(part))
	}
	d, err := agg.EndMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)

	agg.BeginMessage(2)
	_, _ = agg.Write([]byte("From: undisclosed\r\n\r\n"))
	_, err = agg.EndMessage(ctx)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)

	// Data outside of a message is ignored.
	_, _ = agg.Write([]byte("From: <z@z.com>\r\n\r\n"))
	d, err = agg.EndMessage(ctx)
	require.NoError(t, err)
	assert.Empty(t, d)

	report := agg.Report("me")
	assert.Equal(t, []tally.Entry{{Domain: "example.com", Count: 1}}, report.Entries)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Skipped)
}

func TestAggregatorBoundsBuffer(t *testing.T) {
	agg := NewAggregator(32, discardLogger())
	ctx := context.Background()

	agg.BeginMessage(1)
	_, _ = agg.Write([]byte("From: <a@x.com>\r\n"))
	_, _ = agg.Write([]byte("Subject: " + strings.Repeat("x", 100) + "\r\n\r\n"))
	d, err := agg.EndMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x.com", d)

	agg.BeginMessage(2)
	_, _ = agg.Write([]byte("Subject: " + strings.Repeat("x", 100) + "\r\n"))
	_, _ = agg.Write([]byte("From: <b@y.com>\r\n\r\n"))
	_, err = agg.EndMessage(ctx)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}
