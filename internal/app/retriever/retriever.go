package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/hickar/mailcount/internal/app/config"
	"github.com/hickar/mailcount/internal/app/mailer"
)

type ImapDialer interface {
	Dial(address string, useTLS bool, options *imapclient.Options) (*imapclient.Client, error)
}

type ImapDialerFunc func(string, bool, *imapclient.Options) (*imapclient.Client, error)

func (f ImapDialerFunc) Dial(address string, useTLS bool, options *imapclient.Options) (*imapclient.Client, error) {
	return f(address, useTLS, options)
}

// DialIMAP connects over implicit TLS when useTLS is set
// and over a plain connection otherwise.
func DialIMAP(address string, useTLS bool, options *imapclient.Options) (*imapclient.Client, error) {
	if useTLS {
		return imapclient.DialTLS(address, options)
	}
	return imapclient.DialInsecure(address, options)
}

type imapRetriever struct {
	dialer ImapDialer
	logger *slog.Logger
}

func NewIMAPRetriever(dialer ImapDialer, logger *slog.Logger) *imapRetriever {
	return &imapRetriever{
		dialer: dialer,
		logger: logger,
	}
}

// Connect dials the account's server and authenticates. The returned
// mailbox owns the connection; it is closed by Close or once ctx is done.
func (r *imapRetriever) Connect(ctx context.Context, acc config.Account) (*Mailbox, error) {
	addr := Address(acc)

	client, err := r.dialer.Dial(addr, acc.TLS, &imapclient.Options{
		DebugWriter:           nil,
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{},
		WordDecoder:           &mime.WordDecoder{CharsetReader: charset.Reader},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// Closing the client unblocks any command waiting on the server.
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if err = client.Login(acc.User, acc.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, fmt.Errorf("login: %w", err)
	}

	r.logger.DebugContext(ctx, "logged in", slog.String("address", addr))
	return &Mailbox{client: client, stop: stop}, nil
}

// Address returns host:port of the account's server, using the
// protocol default port when none is configured.
func Address(acc config.Account) string {
	return net.JoinHostPort(acc.Host, strconv.Itoa(acc.EffectivePort()))
}

// Mailbox is an authenticated IMAP session.
type Mailbox struct {
	client *imapclient.Client
	stop   func() bool
	status mailer.MailboxStatus
}

// OpenInbox selects the named mailbox. With readOnly set the server
// is asked for EXAMINE semantics, so no flags change.
func (m *Mailbox) OpenInbox(_ context.Context, name string, readOnly bool) (mailer.MailboxStatus, error) {
	data, err := m.client.Select(name, &imap.SelectOptions{
		ReadOnly: readOnly,
	}).Wait()
	if err != nil {
		return mailer.MailboxStatus{}, fmt.Errorf("select %q: %w", name, err)
	}

	m.status = mailer.MailboxStatus{
		Name:        name,
		NumMessages: data.NumMessages,
		UIDValidity: data.UIDValidity,
		ReadOnly:    readOnly,
	}
	return m.status, nil
}

// FetchHeaders requests the given header fields of every message in
// the selected mailbox. Header sections are peeked, leaving \Seen intact.
func (m *Mailbox) FetchHeaders(_ context.Context, fields []string) mailer.HeaderStream {
	// FETCH 1:* on an empty mailbox is rejected by some servers.
	if m.status.NumMessages == 0 {
		return emptyStream{}
	}

	all := imap.SeqSet{imap.SeqRange{Start: 1, Stop: 0}}
	return &headerStream{cmd: m.client.Fetch(all, headerFetchOptions(fields))}
}

// Close logs out and closes the connection.
func (m *Mailbox) Close() error {
	m.stop()
	if err := m.client.Logout().Wait(); err != nil {
		_ = m.client.Close()
		return fmt.Errorf("logout: %w", err)
	}
	return m.client.Close()
}

func headerFetchOptions(fields []string) *imap.FetchOptions {
	return &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{{
			Specifier:    imap.PartSpecifierHeader,
			HeaderFields: fields,
			Peek:         true,
		}},
	}
}
