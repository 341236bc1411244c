package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{from: "Jane <jane@Sub.Example.COM>", want: "example.com"},
		{from: "<a@x.com>", want: "x.com"},
		{from: `"LinkedIn" <messages-noreply@linkedin.com>`, want: "linkedin.com"},
		{from: "BBC News <news@mail.bbc.co.uk>", want: "bbc.co.uk"},
		{from: "jane@example.co.uk", want: "example.co.uk"},
		{from: "registrierung@bundesanzeiger.de", want: "bundesanzeiger.de"},
		{from: `"registrierung@bundesanzeiger.de"`, want: "bundesanzeiger.de"},
		{from: "hi@pd-dev.xyz", want: "pd-dev.xyz"},
		{from: "localhost@host", want: "host"},
		// Compound ccTLDs other than .co.uk are cut to two labels.
		{from: "Shop <orders@shop.example.com.au>", want: "com.au"},
		// The greedy match attributes a list to its last address.
		{from: "A <a@a.org>, B <b@b.net>", want: "b.net"},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("Case_%d", i), func(t *testing.T) {
			got, err := Extract(tt.from)
			require.NoError(t, err, "from %q", tt.from)
			assert.Equal(t, tt.want, got, "from %q", tt.from)
		})
	}
}

func TestExtractFails(t *testing.T) {
	for _, from := range []string{
		"",
		"Mailer Daemon",
		"undisclosed-recipients:;",
		"user@",
		"<user@>",
	} {
		_, err := Extract(from)
		assert.ErrorIs(t, err, ErrExtractionFailed, "from %q", from)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "google.com", Normalize("mail.google.com"))
	assert.Equal(t, "google.com", Normalize("google.com"))
	assert.Equal(t, "com", Normalize("com"))
	assert.Equal(t, "bbc.co.uk", Normalize("a.b.bbc.co.uk"))
	assert.Equal(t, "co.uk", Normalize("co.uk"))
	assert.Equal(t, "example.com", Normalize("EXAMPLE.COM"))
	assert.Equal(t, "co.jp", Normalize("mail.example.co.jp"))
}
