// Package supportagent manages the personas that answer tickets: their
// character, specialties and the answers they learned to prefer.
package supportagent

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/caredesk/memory"
)

var (
	// ErrNotFound is returned when an agent id does not exist.
	ErrNotFound = errors.New("agent not found")
	// ErrMissingFields is returned when a required persona field is absent.
	ErrMissingFields = errors.New("missing required fields")
)

// DefaultMemoryLimit bounds how many preferred answers a persona keeps.
const DefaultMemoryLimit = 20

// SupportAgent is a persona the desk runs the LLM agent as.
type SupportAgent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Personality string   `json:"personality"`
	Memory      []string `json:"memory"`
	Autonomous  bool     `json:"autonomous"`
	Specialties []string `json:"specialties"`
	Active      bool     `json:"active"`
}

// Draft carries the fields of a create request. Autonomous is a pointer so an
// absent value can be told apart from false.
type Draft struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Personality string   `json:"personality"`
	Specialties []string `json:"specialties"`
	Autonomous  *bool    `json:"autonomous"`
}

// New validates a draft and returns an active persona with empty memory.
func New(d Draft) (*SupportAgent, error) {
	name := strings.TrimSpace(d.Name)
	description := strings.TrimSpace(d.Description)
	personality := strings.TrimSpace(d.Personality)

	if name == "" || description == "" || personality == "" || d.Specialties == nil || d.Autonomous == nil {
		return nil, ErrMissingFields
	}

	return &SupportAgent{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Personality: personality,
		Memory:      []string{},
		Autonomous:  *d.Autonomous,
		Specialties: append([]string{}, d.Specialties...),
		Active:      true,
	}, nil
}

// Clone returns a deep copy.
func (a *SupportAgent) Clone() *SupportAgent {
	c := *a
	c.Memory = append([]string{}, a.Memory...)
	c.Specialties = append([]string{}, a.Specialties...)
	return &c
}

// Patch is a partial update. Nil fields are left untouched; the id is fixed.
type Patch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Personality *string   `json:"personality,omitempty"`
	Memory      *[]string `json:"memory,omitempty"`
	Autonomous  *bool     `json:"autonomous,omitempty"`
	Specialties *[]string `json:"specialties,omitempty"`
	Active      *bool     `json:"active,omitempty"`
}

// Merge returns a copy of a with the patch applied.
func Merge(a *SupportAgent, p Patch) *SupportAgent {
	out := a.Clone()

	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Personality != nil {
		out.Personality = *p.Personality
	}
	if p.Memory != nil {
		out.Memory = append([]string{}, (*p.Memory)...)
	}
	if p.Autonomous != nil {
		out.Autonomous = *p.Autonomous
	}
	if p.Specialties != nil {
		out.Specialties = append([]string{}, (*p.Specialties)...)
	}
	if p.Active != nil {
		out.Active = *p.Active
	}

	return out
}

// Remember appends a preferred answer and keeps the most recent limit
// entries. Blank answers and an immediate repeat of the last entry are
// ignored. A limit <= 0 uses DefaultMemoryLimit.
func Remember(a *SupportAgent, answer string, limit int) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return
	}
	if n := len(a.Memory); n > 0 && a.Memory[n-1] == answer {
		return
	}
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}

	a.Memory = append(a.Memory, answer)
	if len(a.Memory) > limit {
		a.Memory = append([]string{}, a.Memory[len(a.Memory)-limit:]...)
	}
}

// Recall returns up to limit remembered answers relevant to query.
func (a *SupportAgent) Recall(query string, limit int) []string {
	return memory.Contents(memory.Recall(a.Memory, query, limit))
}

// Pick chooses the persona for a ticket. An explicit id wins when it names
// an active agent. Otherwise the active agent whose specialties best overlap
// the ticket text is chosen, falling back to the first active agent. It
// returns nil when no agent is active.
func Pick(agents []*SupportAgent, id, text string) *SupportAgent {
	var active []*SupportAgent
	for _, a := range agents {
		if a == nil || !a.Active {
			continue
		}
		if id != "" && a.ID == id {
			return a
		}
		active = append(active, a)
	}

	if len(active) == 0 {
		return nil
	}

	keywords := memory.Tokenize(text)

	best, bestScore := active[0], 0.0
	for _, a := range active {
		score := 0.0
		for _, s := range a.Specialties {
			tokens := memory.Tokenize(s)
			if len(tokens) == 0 {
				continue
			}
			score += memory.Overlap(tokens, strings.Join(keywords, " "))
		}
		if score > bestScore {
			best, bestScore = a, score
		}
	}

	return best
}
