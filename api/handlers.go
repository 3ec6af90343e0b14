package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/caredesk"
	"github.com/hupe1980/caredesk/auth"
	"github.com/hupe1980/caredesk/lock"
	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/ticket"
)

const (
	msgInvalidJSON    = "Invalid JSON body"
	msgMissingFields  = "Missing required fields"
	msgTicketNotFound = "Ticket not found"
	msgAgentNotFound  = "Agent not found"
	msgInternal       = "Internal Server Error"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.opts.Version,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// handleListTickets handles GET /api/tickets?status=&email=&q=&limit=
func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ticket.Filter{
		Email: strings.TrimSpace(q.Get("email")),
		Query: strings.TrimSpace(q.Get("q")),
	}

	if raw := q.Get("status"); raw != "" {
		st, err := ticket.ParseStatus(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &st
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	tickets, err := s.desk.ListTickets(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list tickets", err)
		return
	}

	if tickets == nil {
		tickets = []*ticket.Ticket{}
	}

	respondJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var in caredesk.TicketInput
	if err := parseJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	t, err := s.desk.CreateTicket(r.Context(), in)
	if err != nil {
		if errors.Is(err, caredesk.ErrValidation) {
			respondError(w, http.StatusBadRequest, msgMissingFields)
			return
		}
		s.internalError(w, "create ticket", err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.desk.GetTicket(r.Context(), pathID(r))
	if err != nil {
		s.ticketError(w, "get ticket", err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var patch ticket.Patch
	if err := parseJSON(r, &patch); err != nil {
		respondMessage(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	t, err := s.desk.UpdateTicket(r.Context(), pathID(r), patch)
	if err != nil {
		s.ticketError(w, "update ticket", err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.desk.DeleteTicket(r.Context(), pathID(r)); err != nil {
		s.ticketError(w, "delete ticket", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReviewTicket records the human verdict. With auth enabled the
// reviewer is the token subject, not the body field.
func (s *Server) handleReviewTicket(w http.ResponseWriter, r *http.Request) {
	var in caredesk.ReviewInput
	if err := parseJSON(r, &in); err != nil {
		respondMessage(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	if reviewer, ok := auth.ReviewerFromContext(r.Context()); ok {
		in.Reviewer = reviewer
	}

	t, err := s.desk.ReviewTicket(r.Context(), pathID(r), in)
	if err != nil {
		s.ticketError(w, "review ticket", err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// ticketError maps desk errors of the ticket item routes.
func (s *Server) ticketError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		respondMessage(w, http.StatusNotFound, msgTicketNotFound)
	case errors.Is(err, ticket.ErrInvalidTransition):
		respondMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, caredesk.ErrValidation):
		respondMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrLocked):
		respondMessage(w, http.StatusConflict, "Ticket is being processed")
	default:
		s.logger.Error(op+" failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.desk.ListAgents(r.Context())
	if err != nil {
		s.internalError(w, "list agents", err)
		return
	}

	if agents == nil {
		agents = []*supportagent.SupportAgent{}
	}

	respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var draft supportagent.Draft
	if err := parseJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	a, err := s.desk.CreateAgent(r.Context(), draft)
	if err != nil {
		if errors.Is(err, caredesk.ErrValidation) {
			respondError(w, http.StatusBadRequest, msgMissingFields)
			return
		}
		s.internalError(w, "create agent", err)
		return
	}

	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.desk.GetAgent(r.Context(), pathID(r))
	if err != nil {
		if errors.Is(err, supportagent.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, msgAgentNotFound)
			return
		}
		s.logger.Error("get agent failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}

	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var patch supportagent.Patch
	if err := parseJSON(r, &patch); err != nil {
		respondMessage(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	a, err := s.desk.UpdateAgent(r.Context(), pathID(r), patch)
	if err != nil {
		if errors.Is(err, supportagent.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, msgAgentNotFound)
			return
		}
		s.logger.Error("update agent failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, msgInternal)
		return
	}

	respondJSON(w, http.StatusOK, a)
}

type generateAnswersRequest struct {
	TicketID string `json:"ticketId"`
	AgentID  string `json:"agentId,omitempty"`
}

// handleGenerateAnswers runs or resumes the support agent on a ticket. A
// ticket the agent cannot work on is returned as is.
func (s *Server) handleGenerateAnswers(w http.ResponseWriter, r *http.Request) {
	var req generateAnswersRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	if strings.TrimSpace(req.TicketID) == "" {
		respondError(w, http.StatusBadRequest, "ticketId is required")
		return
	}

	res, err := s.desk.ProcessTicket(r.Context(), strings.TrimSpace(req.TicketID), strings.TrimSpace(req.AgentID))
	if err != nil {
		switch {
		case errors.Is(err, ticket.ErrNotFound):
			respondError(w, http.StatusNotFound, msgTicketNotFound)
		case errors.Is(err, supportagent.ErrNotFound):
			respondError(w, http.StatusNotFound, msgAgentNotFound)
		case errors.Is(err, caredesk.ErrValidation):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, lock.ErrLocked):
			respondError(w, http.StatusConflict, "Ticket is being processed")
		default:
			s.logger.Error("generate answers failed", "ticket_id", req.TicketID, "error", err)
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if res.Message == "" {
		respondJSON(w, http.StatusOK, res.Ticket)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

type proposalsRequest struct {
	CustomerQuery string `json:"customerQuery"`
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	var req proposalsRequest
	if err := parseJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	out, err := s.desk.DraftProposals(r.Context(), req.CustomerQuery)
	if err != nil {
		if errors.Is(err, caredesk.ErrValidation) {
			respondError(w, http.StatusBadRequest, "customerQuery is required")
			return
		}
		s.logger.Error("draft proposals failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	respondError(w, http.StatusInternalServerError, msgInternal)
}
