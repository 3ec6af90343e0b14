package ticket

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "data", "tickets.json")),
		"sqlite": newSQLiteStore(t),
	}
}

func seed(t *testing.T, s Store, id, subject, email string, status Status, created time.Time) *Ticket {
	t.Helper()

	tk := &Ticket{
		ID:        id,
		Subject:   subject,
		Content:   "content of " + subject,
		Email:     email,
		Status:    status,
		CreatedAt: created,
	}
	require.NoError(t, s.Save(context.Background(), tk))

	return tk
}

func ids(tickets []*Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, tk := range tickets {
		out = append(out, tk.ID)
	}

	return out
}

func TestStore_Contract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tk := seed(t, s, "TK-1", "Login", "a@b.c", StatusWaitingForPickup, epoch)
			assert.False(t, tk.UpdatedAt.IsZero())

			got, err := s.Get(ctx, "TK-1")
			require.NoError(t, err)
			assert.Equal(t, "Login", got.Subject)
			assert.Equal(t, StatusWaitingForPickup, got.Status)
			assert.True(t, epoch.Equal(got.CreatedAt))

			got.Status = StatusPickedUpByAgent
			got.ProposedAnswers = []string{"a", "b"}
			got.AgentState = json.RawMessage(`{"version":1}`)
			got.Review = &Review{Reviewer: "bob", Approved: true, ReviewedAt: epoch}
			got.UpdatedAt = epoch.Add(time.Minute)
			require.NoError(t, s.Save(ctx, got))

			again, err := s.Get(ctx, "TK-1")
			require.NoError(t, err)
			assert.Equal(t, StatusPickedUpByAgent, again.Status)
			assert.Equal(t, []string{"a", "b"}, again.ProposedAnswers)
			assert.JSONEq(t, `{"version":1}`, string(again.AgentState))
			require.NotNil(t, again.Review)
			assert.Equal(t, "bob", again.Review.Reviewer)
			assert.True(t, epoch.Add(time.Minute).Equal(again.UpdatedAt))

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)

			require.NoError(t, s.Delete(ctx, "TK-1"))
			_, err = s.Get(ctx, "TK-1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "TK-1"), ErrNotFound)
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed(t, s, "TK-1", "Login broken", "jane@example.com", StatusWaitingForPickup, epoch)
			seed(t, s, "TK-2", "Refund", "bob@example.com", StatusAnswered, epoch.Add(time.Minute))
			seed(t, s, "TK-3", "Password reset", "Jane@Example.com", StatusWaitingForPickup, epoch.Add(2*time.Minute))

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"TK-3", "TK-2", "TK-1"}, ids(all))

			waiting := StatusWaitingForPickup
			got, err := s.List(ctx, Filter{Status: &waiting})
			require.NoError(t, err)
			assert.Equal(t, []string{"TK-3", "TK-1"}, ids(got))

			got, err = s.List(ctx, Filter{Email: "jane@example.com"})
			require.NoError(t, err)
			assert.Equal(t, []string{"TK-3", "TK-1"}, ids(got))

			got, err = s.List(ctx, Filter{Query: "REFUND"})
			require.NoError(t, err)
			assert.Equal(t, []string{"TK-2"}, ids(got))

			got, err = s.List(ctx, Filter{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"TK-3", "TK-2"}, ids(got))
		})
	}
}

func TestStore_CreateAllocatesFreeID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := &Ticket{ID: "TK-1", Subject: "a", Content: "a", Email: "a@b.c", Status: StatusWaitingForPickup, CreatedAt: epoch, UpdatedAt: epoch}
			require.NoError(t, s.Create(ctx, first))
			assert.Equal(t, "TK-1", first.ID)

			seed(t, s, "TK-1-2", "b", "a@b.c", StatusWaitingForPickup, epoch)

			third := &Ticket{ID: "TK-1", Subject: "c", Content: "c", Email: "a@b.c", Status: StatusWaitingForPickup, CreatedAt: epoch, UpdatedAt: epoch}
			require.NoError(t, s.Create(ctx, third))
			assert.Equal(t, "TK-1-3", third.ID)

			got, err := s.Get(ctx, "TK-1")
			require.NoError(t, err)
			assert.Equal(t, "a", got.Subject)
		})
	}
}

func TestStore_ConcurrentCreateKeepsEveryTicket(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 50

			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.Create(ctx, &Ticket{ID: "TK-1", Subject: "s", Content: "c", Email: "a@b.c", Status: StatusWaitingForPickup, CreatedAt: epoch, UpdatedAt: epoch})
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.NoError(t, err)
			}

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, n)

			seen := map[string]bool{}
			for _, tk := range all {
				assert.False(t, seen[tk.ID], "duplicate id %s", tk.ID)
				seen[tk.ID] = true
			}
		})
	}
}

func TestStore_SaveKeepsCallerTimestamps(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tk := &Ticket{ID: "TK-1", Subject: "a", Content: "a", Email: "a@b.c", Status: StatusWaitingForPickup, CreatedAt: epoch, UpdatedAt: epoch.Add(time.Hour)}
			require.NoError(t, s.Save(ctx, tk))
			assert.True(t, epoch.Add(time.Hour).Equal(tk.UpdatedAt))

			got, err := s.Get(ctx, "TK-1")
			require.NoError(t, err)
			assert.True(t, epoch.Add(time.Hour).Equal(got.UpdatedAt))
		})
	}
}
