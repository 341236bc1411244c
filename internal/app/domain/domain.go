// Package domain derives the registrable sender domain from a raw "From" header.
//
// The extraction is a heuristic rather than an RFC 5322 address parser:
// hosts are reduced to their last two labels, except for ".co.uk" hosts
// which keep three. Other compound ccTLDs such as ".com.au" are truncated
// to two labels as well.
package domain

import (
	"errors"
	"regexp"
	"strings"
)

// ErrExtractionFailed reports a header that does not contain a recognizable address.
var ErrExtractionFailed = errors.New("domain extraction failed")

var (
	// Matches "Name <user@host>" and captures the host.
	angleAddrRegexp = regexp.MustCompile(`<.*@(.*)>"?`)
	// Matches bare addresses such as "user@host" or `"user@host"`.
	looseAddrRegexp = regexp.MustCompile(`^.*@(.*?)"?$`)
)

const compoundSuffix = ".co.uk"

// Extract returns the registrable domain of the sender in from.
// It returns ErrExtractionFailed when no address host can be found.
func Extract(from string) (string, error) {
	host, ok := matchHost(from)
	if !ok {
		return "", ErrExtractionFailed
	}

	return Normalize(host), nil
}

// Normalize reduces host to its registrable domain.
func Normalize(host string) string {
	host = strings.ToLower(host)

	keep := 2
	if strings.HasSuffix(host, compoundSuffix) {
		keep = 3
	}

	labels := strings.Split(host, ".")
	if len(labels) > keep {
		labels = labels[len(labels)-keep:]
	}
	return strings.Join(labels, ".")
}

func matchHost(from string) (string, bool) {
	m := angleAddrRegexp.FindStringSubmatch(from)
	if m == nil {
		m = looseAddrRegexp.FindStringSubmatch(from)
	}
	if m == nil {
		return "", false
	}

	host := m[len(m)-1]
	if host == "" {
		return "", false
	}
	return host, true
}
