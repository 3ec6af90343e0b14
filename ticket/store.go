package ticket

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Store is the persistence interface for tickets.
type Store interface {
	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Ticket, error)
	// Get retrieves a ticket by id or returns ErrNotFound.
	Get(ctx context.Context, id string) (*Ticket, error)
	// Create inserts a new ticket. When its id is taken the first free
	// "<id>-<n>" is used instead and written back to t.ID.
	Create(ctx context.Context, t *Ticket) error
	// Save creates or replaces a ticket by id. A zero UpdatedAt is stamped.
	Save(ctx context.Context, t *Ticket) error
	// Delete removes a ticket or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Filter constrains ticket list queries.
type Filter struct {
	Status *Status
	Email  string // exact, case-insensitive
	Query  string // substring on subject and content, case-insensitive
	Limit  int    // 0 = no limit
}

// Match reports whether t satisfies the filter (ignoring Limit).
func (f Filter) Match(t *Ticket) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Email != "" && !strings.EqualFold(f.Email, t.Email) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(t.Subject), q) && !strings.Contains(strings.ToLower(t.Content), q) {
			return false
		}
	}
	return true
}

// touch fills in missing timestamps. Timestamps set by the caller stand.
func touch(t *Ticket) {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
}

// sortNewest orders tickets by creation time descending, id as tie-breaker.
func sortNewest(ts []*Ticket) {
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.After(ts[j].CreatedAt)
		}
		return ts[i].ID > ts[j].ID
	})
}

// candidateID is the n-th id tried for base. The first attempt is base itself.
func candidateID(base string, n int) string {
	if n < 2 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}
