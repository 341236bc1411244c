// Package runner drives one connection per account through
// connect, inbox open, header fetch and report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hickar/mailcount/internal/app/config"
	"github.com/hickar/mailcount/internal/app/mailer"
	"github.com/hickar/mailcount/internal/app/scanner"
	"github.com/hickar/mailcount/internal/app/tally"
	"github.com/hickar/mailcount/internal/pkg/logger"
)

// Mailbox is an authenticated connection to a mail server.
type Mailbox interface {
	OpenInbox(ctx context.Context, name string, readOnly bool) (mailer.MailboxStatus, error)
	FetchHeaders(ctx context.Context, fields []string) mailer.HeaderStream
	Close() error
}

// Connector opens authenticated connections. A successful Connect
// corresponds to the server being ready for commands.
type Connector interface {
	Connect(ctx context.Context, acc config.Account) (Mailbox, error)
}

type ConnectorFunc func(context.Context, config.Account) (Mailbox, error)

func (f ConnectorFunc) Connect(ctx context.Context, acc config.Account) (Mailbox, error) {
	return f(ctx, acc)
}

type HeaderScanner interface {
	Scan(ctx context.Context, user string, stream mailer.HeaderStream) (tally.Report, error)
}

type Runner struct {
	connector Connector
	scanner   HeaderScanner
	logger    *slog.Logger

	outMu sync.Mutex
	out   io.Writer
}

func NewRunner(
	connector Connector,
	headerScanner HeaderScanner,
	out io.Writer,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		connector: connector,
		scanner:   headerScanner,
		out:       out,
		logger:    logger,
	}
}

// RunAll runs every account concurrently on its own connection.
// A failing account never affects the others; all failures are joined.
func (r *Runner) RunAll(ctx context.Context, accounts []config.Account) error {
	errs := make([]error, len(accounts))

	var wg sync.WaitGroup
	for i, acc := range accounts {
		i, acc := i, acc
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Run(ctx, acc)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Run counts the sender domains of every message in the account's
// mailbox and writes the report to the runner's output.
//
// The mailbox is opened read-only and headers are peeked, so the
// server state is never modified. Connection, login, inbox and
// cancellation failures are returned as *ConnectionError. A fetch
// that ends with an error is logged and the partial report is still
// written.
func (r *Runner) Run(ctx context.Context, acc config.Account) (tally.Report, error) {
	ctx = logger.WithAttrs(ctx,
		slog.String("account", acc.User),
		slog.String("run_id", uuid.NewString()),
	)
	s := newSession(acc.User, r.logger)

	if err := s.transition(ctx, StateConnecting); err != nil {
		return tally.Report{}, s.fail(ctx, err)
	}

	mailbox, err := r.connector.Connect(ctx, acc)
	if err != nil {
		return tally.Report{}, s.fail(ctx, fmt.Errorf("connect: %w", err))
	}
	defer r.end(ctx, s, mailbox)

	if err = s.transition(ctx, StateReady); err != nil {
		return tally.Report{}, s.fail(ctx, err)
	}

	status, err := mailbox.OpenInbox(ctx, acc.EffectiveMailbox(), true)
	if err != nil {
		return tally.Report{}, s.fail(ctx, fmt.Errorf("open inbox: %w", err))
	}
	if err = s.transition(ctx, StateInboxOpen); err != nil {
		return tally.Report{}, s.fail(ctx, err)
	}
	r.logger.DebugContext(ctx, "mailbox opened",
		slog.String("mailbox", status.Name),
		slog.Any("messages", status.NumMessages),
	)

	stream := mailbox.FetchHeaders(ctx, mailer.HeaderFields)
	if err = s.transition(ctx, StateFetching); err != nil {
		_ = stream.Close()
		return tally.Report{}, s.fail(ctx, err)
	}

	report, err := r.scanner.Scan(ctx, acc.User, stream)
	if err != nil && !errors.Is(err, scanner.ErrFetch) {
		return report, s.fail(ctx, err)
	}

	if err = r.writeReport(report); err != nil {
		r.logger.ErrorContext(ctx, "unable to write report", slog.Any("error", err))
	}
	r.logger.InfoContext(ctx, "mailbox scanned",
		slog.Int("messages", report.Scanned),
		slog.Int("counted", report.Counted),
		slog.Int("skipped", report.Skipped),
		slog.Int("domains", len(report.Entries)),
	)

	return report, nil
}

// end closes the connection once the run is over, whatever its outcome.
func (r *Runner) end(ctx context.Context, s *session, mailbox Mailbox) {
	if err := mailbox.Close(); err != nil {
		r.logger.DebugContext(ctx, "connection close failed", slog.Any("error", err))
	}
	if !s.state.Terminal() {
		_ = s.transition(ctx, StateClosed)
	}
	r.logger.DebugContext(ctx, "connection ended")
}

func (r *Runner) writeReport(report tally.Report) error {
	r.outMu.Lock()
	defer r.outMu.Unlock()

	_, err := report.WriteTo(r.out)
	return err
}
