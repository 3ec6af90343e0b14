package ticket

import (
	"context"
	"fmt"

	"github.com/hupe1980/caredesk/internal/jsonfile"
)

// DefaultFile is the conventional ticket file location.
const DefaultFile = "data/tickets.json"

// FileStore keeps all tickets in one JSON array file.
type FileStore struct {
	file *jsonfile.File[*Ticket]
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFile
	}
	return &FileStore{file: jsonfile.New[*Ticket](path)}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.file.Path() }

// List implements Store.
func (s *FileStore) List(ctx context.Context, filter Filter) ([]*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.file.Read()
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}

	out := make([]*Ticket, 0, len(all))
	for _, t := range all {
		if t != nil && filter.Match(t) {
			out = append(out, t)
		}
	}

	sortNewest(out)

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.file.Read()
	if err != nil {
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}

	for _, t := range all {
		if t != nil && t.ID == id {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create implements Store. The id check and the append run under the file
// lock.
func (s *FileStore) Create(ctx context.Context, t *Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	touch(t)
	base := t.ID

	err := s.file.Update(func(all []*Ticket) ([]*Ticket, error) {
		taken := make(map[string]struct{}, len(all))
		for _, existing := range all {
			if existing != nil {
				taken[existing.ID] = struct{}{}
			}
		}

		id := base
		for n := 2; ; n++ {
			if _, ok := taken[id]; !ok {
				break
			}
			id = candidateID(base, n)
		}

		t.ID = id
		return append(all, t.Clone()), nil
	})
	if err != nil {
		t.ID = base
		return fmt.Errorf("ticket store: create: %w", err)
	}

	return nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, t *Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	touch(t)
	stored := t.Clone()

	err := s.file.Update(func(all []*Ticket) ([]*Ticket, error) {
		for i, existing := range all {
			if existing != nil && existing.ID == stored.ID {
				all[i] = stored
				return all, nil
			}
		}
		return append(all, stored), nil
	})
	if err != nil {
		return fmt.Errorf("ticket store: save: %w", err)
	}

	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.file.Update(func(all []*Ticket) ([]*Ticket, error) {
		for i, existing := range all {
			if existing != nil && existing.ID == id {
				return append(all[:i], all[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}
