package http

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"sxledger/internal/services"
	"sxledger/internal/sx"
)

type stateRequest struct {
	State string `json:"state"`
}

type variableRequest struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

type effectRequest struct {
	AutoCreateOnly bool `json:"auto_create_only"`
}

type summaryResponse struct {
	Instances      int  `json:"instances"`
	ToCreate       int  `json:"to_create"`
	AutoCreate     int  `json:"auto_create"`
	Reminders      int  `json:"reminders"`
	Postponed      int  `json:"postponed"`
	NeedsAttention bool `json:"needs_attention"`
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	groups, err := s.session.Groups(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, groups)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	view, err := s.session.Instance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, view)
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	state, err := sx.ParseState(sanitizeInput(req.State))
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}
	// Created is reached only by effecting.
	if state == sx.Created {
		writeError(w, r, badRequest("state %q cannot be set directly", state))
		return
	}

	view, err := s.session.SetState(r.Context(), r.PathValue("id"), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, view)
}

func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	var req variableRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	name := sanitizeInput(req.Name)
	if name == "" {
		writeError(w, r, badRequest("variable name is required"))
		return
	}

	view, err := s.session.SetVariable(r.Context(), r.PathValue("id"), name, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, view)
}

func (s *Server) handleNeeded(w http.ResponseWriter, r *http.Request) {
	needed, err := s.session.Needed(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if needed == nil {
		needed = []services.NeededView{}
	}
	NewJSONResponse().Write(w, needed)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.session.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, summaryResponse{
		Instances:      sum.Instances,
		ToCreate:       sum.ToCreate,
		AutoCreate:     sum.AutoCreate,
		Reminders:      sum.Reminders,
		Postponed:      sum.Postponed,
		NeedsAttention: sum.NeedsAttention(),
	})
}

// handleEffect refuses to run while variables are missing, matching what
// an interactive user is shown before committing.
func (s *Server) handleEffect(w http.ResponseWriter, r *http.Request) {
	var req effectRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.session.Effect(r.Context(), req.AutoCreateOnly)
	var needed *services.NeededError
	if errors.As(err, &needed) {
		NewJSONResponse().Status(http.StatusConflict).Write(w, struct {
			Error  string                `json:"error"`
			Needed []services.NeededView `json:"needed"`
		}{"variables need values before effecting", needed.Needed})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Created == nil {
		report.Created = []services.CreatedTransaction{}
	}
	NewJSONResponse().Write(w, report)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleListInstances(w, r)
}
