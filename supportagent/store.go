package supportagent

import (
	"context"
	"fmt"

	"github.com/hupe1980/caredesk/internal/jsonfile"
)

// DefaultFile is the conventional persona file location.
const DefaultFile = "data/support-agents.json"

// Store persists support agents.
type Store interface {
	List(ctx context.Context) ([]*SupportAgent, error)
	Get(ctx context.Context, id string) (*SupportAgent, error)
	// Save creates or replaces an agent by id.
	Save(ctx context.Context, a *SupportAgent) error
}

// FileStore keeps every persona in one JSON array file, in insertion order.
type FileStore struct {
	file *jsonfile.File[*SupportAgent]
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFile
	}
	return &FileStore{file: jsonfile.New[*SupportAgent](path)}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.file.Path() }

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]*SupportAgent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.file.Read()
	if err != nil {
		return nil, fmt.Errorf("agent store: list: %w", err)
	}

	out := make([]*SupportAgent, 0, len(all))
	for _, a := range all {
		if a != nil {
			out = append(out, a)
		}
	}

	return out, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*SupportAgent, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, a *SupportAgent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := a.Clone()

	err := s.file.Update(func(all []*SupportAgent) ([]*SupportAgent, error) {
		for i, existing := range all {
			if existing != nil && existing.ID == stored.ID {
				all[i] = stored
				return all, nil
			}
		}
		return append(all, stored), nil
	})
	if err != nil {
		return fmt.Errorf("agent store: save: %w", err)
	}

	return nil
}
