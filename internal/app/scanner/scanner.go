// Package scanner counts sender domains over a streamed header fetch.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hickar/mailcount/internal/app/mailer"
	"github.com/hickar/mailcount/internal/app/tally"
)

// ErrFetch wraps errors the header fetch ended with.
var ErrFetch = errors.New("fetch error")

const defaultChunkSize = 4 << 10

type Options struct {
	MaxHeaderSize int // per message header buffer bound, DefaultMaxHeaderSize if zero
	ChunkSize     int // read size used on header literals
}

type Scanner struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Scanner {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}

	return &Scanner{
		opts:   opts,
		logger: logger,
	}
}

// Scan consumes stream until it is exhausted and returns the report for user.
//
// Messages whose sender domain cannot be determined are logged and skipped.
// An error the fetch itself ended with is logged and returned wrapped in
// ErrFetch together with the report built from everything received so far.
// Only context cancellation stops the scan early.
func (s *Scanner) Scan(ctx context.Context, user string, stream mailer.HeaderStream) (tally.Report, error) {
	agg := NewAggregator(s.opts.MaxHeaderSize, s.logger)
	chunk := make([]byte, s.opts.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			_ = stream.Close()
			return agg.Report(user), fmt.Errorf("scan interrupted: %w", err)
		}

		msg := stream.Next()
		if msg == nil {
			break
		}

		agg.BeginMessage(msg.SeqNum)
		if err := copyChunks(agg, msg.Header, chunk); err != nil {
			// Whatever arrived before the failure is still parsed.
			s.logger.WarnContext(ctx, "message header read failed",
				slog.Any("seq_num", msg.SeqNum),
				slog.Any("error", err),
			)
		}
		_, _ = agg.EndMessage(ctx)
	}

	report := agg.Report(user)
	if err := stream.Close(); err != nil {
		s.logger.ErrorContext(ctx, "header fetch failed", slog.Any("error", err))
		return report, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return report, nil
}

func copyChunks(dst io.Writer, src io.Reader, chunk []byte) error {
	if src == nil {
		return nil
	}

	for {
		n, err := src.Read(chunk)
		if n > 0 {
			_, _ = dst.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
