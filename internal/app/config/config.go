package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hickar/mailcount/internal/app/mailer"
)

// DefaultFilepath is looked up in the working directory.
const DefaultFilepath = "imapconfig.json"

const (
	defaultPort    = 143
	defaultTLSPort = 993
)

// ErrNoAccounts is returned for a well-formed configuration without accounts.
var ErrNoAccounts = errors.New("configuration file contains no accounts")

type Account struct {
	User     string `yaml:"user"`     // Login name, also used to label the report.
	Password string `yaml:"password"` // Passed to the server as is.
	Host     string `yaml:"host"`     // IMAP server host.
	Port     int    `yaml:"port"`     // Optional, 993 with TLS and 143 without.
	TLS      bool   `yaml:"tls"`      // Use implicit TLS.
	Mailbox  string `yaml:"mailbox"`  // Optional, INBOX by default.
}

// EffectivePort returns the configured port or the protocol default.
func (a Account) EffectivePort() int {
	switch {
	case a.Port != 0:
		return a.Port
	case a.TLS:
		return defaultTLSPort
	default:
		return defaultPort
	}
}

// EffectiveMailbox returns the configured mailbox name or INBOX.
func (a Account) EffectiveMailbox() string {
	if a.Mailbox == "" {
		return mailer.DefaultMailbox
	}
	return a.Mailbox
}

// LoadAccounts reads and validates the account list stored at cfgFilepath.
//
// The file is a JSON array of account objects. When envFilepath is not
// empty the variables it defines are loaded and ${VAR} references in the
// configuration are expanded before decoding.
func LoadAccounts(cfgFilepath, envFilepath string) ([]Account, error) {
	expand := false
	if envFilepath != "" {
		if err := godotenv.Load(envFilepath); err != nil {
			return nil, fmt.Errorf("unable to load environment variables from file: %w", err)
		}
		expand = true
	}

	//nolint:gosec
	fileBytes, err := os.ReadFile(cfgFilepath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("configuration file %q doesn't exist: %w", cfgFilepath, err)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("permission denied for accessing configuration file: %w", err)
		default:
			return nil, fmt.Errorf("unexpected error during reading configuration file: %w", err)
		}
	}

	if expand {
		fileBytes = []byte(os.ExpandEnv(string(fileBytes)))
	}

	return ParseAccounts(fileBytes)
}

// ParseAccounts decodes and validates raw configuration data.
//
// The data is decoded as strict JSON, then checked against the account
// schema as a YAML node tree. Duplicate keys keep their last value.
func ParseAccounts(data []byte) ([]Account, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoAccounts
		}
		return nil, fmt.Errorf("unable to unmarshal configuration file: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to unmarshal configuration file: unexpected data after top-level value at offset %d", dec.InputOffset())
	}

	value, err := plainNumbers(value)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal configuration file: %w", err)
	}

	var root yaml.Node
	if err := root.Encode(value); err != nil {
		return nil, fmt.Errorf("unable to decode accounts: %w", err)
	}

	if err := validate(&root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, ErrNoAccounts
	}

	var accounts []Account
	if err := root.Decode(&accounts); err != nil {
		return nil, fmt.Errorf("unable to decode accounts: %w", err)
	}

	return accounts, nil
}

// plainNumbers replaces json.Number values with int64, or float64 for
// non-integral numbers, so the node encoder tags them as numbers.
func plainNumbers(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", v, err)
		}
		return f, nil
	case []any:
		for i := range v {
			item, err := plainNumbers(v[i])
			if err != nil {
				return nil, err
			}
			v[i] = item
		}
		return v, nil
	case map[string]any:
		for k, item := range v {
			item, err := plainNumbers(item)
			if err != nil {
				return nil, err
			}
			v[k] = item
		}
		return v, nil
	default:
		return v, nil
	}
}
