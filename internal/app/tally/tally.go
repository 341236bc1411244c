package tally

import (
	"cmp"
	"slices"

	"github.com/hickar/mailcount/internal/pkg/kvstore"
)

// Entry is a single domain with the number of messages attributed to it.
type Entry struct {
	Domain string
	Count  int
}

// Counts tracks how many messages were received from every domain.
// Domains are remembered in the order they were first seen.
type Counts struct {
	store *kvstore.KVStore[string, int]
}

func NewCounts() *Counts {
	return &Counts{store: kvstore.New[string, int]()}
}

// Add attributes one more message to domain and returns its new count.
func (c *Counts) Add(domain string) int {
	return c.store.Update(domain, func(count int, _ bool) int {
		return count + 1
	})
}

// Len returns number of distinct domains.
func (c *Counts) Len() int {
	return c.store.Len()
}

// Total returns the sum of all counts.
func (c *Counts) Total() int {
	var total int
	c.store.Range(func(_ string, count int) bool {
		total += count
		return true
	})
	return total
}

// Sorted returns all entries ordered by count, highest first.
// Entries with equal counts keep their first-seen order.
func (c *Counts) Sorted() []Entry {
	entries := make([]Entry, 0, c.store.Len())
	c.store.Range(func(domain string, count int) bool {
		entries = append(entries, Entry{Domain: domain, Count: count})
		return true
	})

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return entries
}
