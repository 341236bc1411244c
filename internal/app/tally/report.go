package tally

import (
	"bytes"
	"fmt"
	"io"
)

// Report is the result of scanning a single mailbox.
type Report struct {
	User    string
	Entries []Entry
	Scanned int // messages delivered by the fetch
	Skipped int // messages whose sender domain could not be determined
	Counted int // messages attributed to some domain
}

// NewReport builds a report for user from the accumulated counts.
func NewReport(user string, counts *Counts, scanned, skipped int) Report {
	return Report{
		User:    user,
		Entries: counts.Sorted(),
		Scanned: scanned,
		Skipped: skipped,
		Counted: counts.Total(),
	}
}

// WriteTo renders the report in a single write, so concurrent
// reports sharing a writer never interleave.
//
// Output format:
//
//	Done fetching all messages for: me@example.com
//	Resulting mail map (sorted by count): Map(2) {
//	  'linkedin.com' => 28,
//	  'gmail.com' => 17,
//	}
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Done fetching all messages for: %s\n", r.User)
	fmt.Fprintf(&buf, "Resulting mail map (sorted by count): Map(%d) {", len(r.Entries))
	if len(r.Entries) == 0 {
		buf.WriteString("}\n")
	} else {
		buf.WriteByte('\n')
		for _, e := range r.Entries {
			fmt.Fprintf(&buf, "  '%s' => %d,\n", e.Domain, e.Count)
		}
		buf.WriteString("}\n")
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
