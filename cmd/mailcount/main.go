package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"

	"github.com/hickar/mailcount/internal/app/config"
	"github.com/hickar/mailcount/internal/app/retriever"
	"github.com/hickar/mailcount/internal/app/runner"
	"github.com/hickar/mailcount/internal/app/scanner"
	"github.com/hickar/mailcount/internal/pkg/logger"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFilepath = flag.String("config", config.DefaultFilepath, "Filepath to the account configuration file.")
	envFilepath    = flag.String("env-file", "", "Filepath to environment variables file. When set, ${VAR} references in the configuration are expanded.")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn or error.")
	maxHeaderSize  = flag.String("max-header-size", "64KiB", "Maximum header bytes buffered per message.")
	timeout        = flag.Duration("timeout", 0, "Abort all accounts after this duration. Zero waits indefinitely.")
)

func main() {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if !parseArgs(flag.CommandLine, os.Args[1:]) {
		printHelp(os.Stdout)
		os.Exit(0)
	}

	os.Exit(run())
}

// parseArgs parses args into fs and reports whether the run can start.
// Unknown flags, -h and positional arguments all ask for the usage text.
func parseArgs(fs *flag.FlagSet, args []string) bool {
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return false
	}
	return fs.NArg() == 0
}

func run() int {
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sorry, %s\n", err)
		return 1
	}
	log := logger.New(os.Stderr, level)

	headerLimit, err := units.RAMInBytes(*maxHeaderSize)
	if err != nil || headerLimit <= 0 {
		fmt.Fprintf(os.Stderr, "Sorry, invalid -max-header-size %q\n", *maxHeaderSize)
		return 1
	}

	accounts, err := config.LoadAccounts(*configFilepath, *envFilepath)
	if err != nil {
		printConfigError(os.Stderr, err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()
	if *timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
		defer cancelTimeout()
	}

	imapRetriever := retriever.NewIMAPRetriever(
		retriever.ImapDialerFunc(retriever.DialIMAP),
		log.With(slog.String("module", "retriever")),
	)
	connector := runner.ConnectorFunc(func(ctx context.Context, acc config.Account) (runner.Mailbox, error) {
		mailbox, err := imapRetriever.Connect(ctx, acc)
		if err != nil {
			return nil, err
		}
		return mailbox, nil
	})

	r := runner.NewRunner(
		connector,
		scanner.New(scanner.Options{MaxHeaderSize: int(headerLimit)}, log.With(slog.String("module", "scanner"))),
		os.Stdout,
		log.With(slog.String("module", "runner")),
	)

	started := time.Now()
	if err = r.RunAll(ctx, accounts); err != nil {
		// Per-account failures are already logged by the runner.
		log.Warn("some accounts failed", slog.Int("accounts", len(accounts)))
	}
	log.Debug("done", slog.Duration("elapsed", time.Since(started)))

	return 0
}

func printConfigError(w io.Writer, err error) {
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(w, "Sorry, your %s appears to be invalid. Validation errors:\n\n", *configFilepath)
		for _, v := range verr.Violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	case errors.Is(err, config.ErrNoAccounts):
		fmt.Fprintf(w, "Sorry, your %s file seems to not contain any configuration objects.\n", *configFilepath)
	default:
		fmt.Fprintf(w, "Sorry, got an error reading the %s file! The error was:\n\n  %s\n", *configFilepath, err)
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "version: %s\n", version)
	fmt.Fprint(w, `
mailcount is a tool to list all emails, group them by their domain and display the cumulated sum.

For this to work you need to specify the required config to get the emails of
your account in a file called 'imapconfig.json'.
An example imapconfig.json could look like:

[
  {
    "user": "me@example.com",
    "password": "thisIsThePasswordOfMyEmail",
    "host": "imap.example.com",
    "port": 993,
    "tls": true
  }
]

Then simply run mailcount without arguments to understand who sends you email and how often:

  Done fetching all messages for: me@example.com
  Resulting mail map (sorted by count): Map(3) {
    'linkedin.com' => 28,
    'gmail.com' => 17,
    'npmjs.com' => 5,
  }

Flags:
`)
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
