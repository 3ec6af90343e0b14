package runner

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/caredesk/core"
)

// stateVersion is bumped whenever the persisted RunState layout changes.
const stateVersion = 1

var (
	// ErrUnknownInterruption is returned when deciding on a call id that is not pending.
	ErrUnknownInterruption = errors.New("runner: unknown interruption")
	// ErrUnsupportedState is returned when decoding a state written by an incompatible version.
	ErrUnsupportedState = errors.New("runner: unsupported run state version")
)

// Interruption is a tool call waiting for a human decision.
type Interruption struct {
	CallID    string `json:"callId"`
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments,omitempty"`
	AgentName string `json:"agentName"`
}

// Decision is the human verdict on an interruption.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// RunState is the serializable snapshot of a run. A run that stopped on
// interruptions can be persisted, decided on and handed to Runner.Resume.
type RunState struct {
	Version    int                     `json:"version"`
	RunID      string                  `json:"runId"`
	AgentName  string                  `json:"agentName"`
	Input      string                  `json:"input"`
	History    []core.Content          `json:"history"`
	Responses  []core.FunctionResponse `json:"responses,omitempty"`
	Pending    []Interruption          `json:"pending,omitempty"`
	Decisions  map[string]Decision     `json:"decisions,omitempty"`
	ModelCalls int                     `json:"modelCalls"`
}

func newRunState(agentName, input string) *RunState {
	return &RunState{
		Version:   stateVersion,
		RunID:     core.NewID(),
		AgentName: agentName,
		Input:     input,
		History:   []core.Content{core.NewTextContent("user", input)},
		Decisions: map[string]Decision{},
	}
}

// UnmarshalRunState decodes a state produced by RunState.Marshal.
func UnmarshalRunState(data []byte) (*RunState, error) {
	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("runner: decode run state: %w", err)
	}

	if s.Version != stateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedState, s.Version)
	}

	if s.Decisions == nil {
		s.Decisions = map[string]Decision{}
	}

	return &s, nil
}

// Marshal encodes the state as JSON.
func (s *RunState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Interrupted reports whether the run is waiting for decisions.
func (s *RunState) Interrupted() bool { return len(s.Pending) > 0 }

// Interruptions returns a copy of the pending interruptions.
func (s *RunState) Interruptions() []Interruption {
	out := make([]Interruption, len(s.Pending))
	copy(out, s.Pending)
	return out
}

// Undecided returns pending interruptions that have no decision yet.
func (s *RunState) Undecided() []Interruption {
	var out []Interruption
	for _, in := range s.Pending {
		if _, ok := s.Decisions[in.CallID]; !ok {
			out = append(out, in)
		}
	}
	return out
}

// Approve records approval for a pending call.
func (s *RunState) Approve(callID string) error {
	return s.decide(callID, Decision{Approved: true})
}

// Reject records rejection for a pending call. The reason is passed back to
// the model as the tool result.
func (s *RunState) Reject(callID, reason string) error {
	return s.decide(callID, Decision{Approved: false, Reason: reason})
}

// ApproveAll approves every pending call.
func (s *RunState) ApproveAll() {
	for _, in := range s.Pending {
		_ = s.Approve(in.CallID)
	}
}

// RejectAll rejects every pending call with the same reason.
func (s *RunState) RejectAll(reason string) {
	for _, in := range s.Pending {
		_ = s.Reject(in.CallID, reason)
	}
}

func (s *RunState) decide(callID string, d Decision) error {
	for _, in := range s.Pending {
		if in.CallID == callID {
			if s.Decisions == nil {
				s.Decisions = map[string]Decision{}
			}
			s.Decisions[callID] = d
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownInterruption, callID)
}

// openCalls returns the function calls of the trailing assistant turn that
// still lack a tool response.
func (s *RunState) openCalls() []core.FunctionCall {
	if len(s.History) == 0 {
		return nil
	}

	last := s.History[len(s.History)-1]
	if last.Role != "assistant" {
		return nil
	}

	return last.FunctionCalls()
}

func (s *RunState) response(callID string) (core.FunctionResponse, bool) {
	for _, r := range s.Responses {
		if r.ID == callID {
			return r, true
		}
	}
	return core.FunctionResponse{}, false
}
