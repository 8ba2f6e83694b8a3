package http

import (
	"errors"
	"net/http"

	"sxledger/internal/core"
	"sxledger/internal/seed"
	"sxledger/internal/storage"
)

// scheduleView is a schedule definition in seed form plus the state
// effecting has accumulated on it.
type scheduleView struct {
	seed.Schedule
	LastOccurrence       *core.Date `json:"last_occurrence,omitempty"`
	InstanceCount        int        `json:"instance_count"`
	RemainingOccurrences int        `json:"remaining_occurrences"`
	Postponed            int        `json:"postponed"`
}

func newScheduleView(s *core.Schedule) scheduleView {
	v := scheduleView{
		Schedule:             seed.FromSchedule(s),
		InstanceCount:        s.InstanceCount,
		RemainingOccurrences: s.RemainingOccurrences,
		Postponed:            len(s.Postponed),
	}
	if !s.LastOccurrence.IsZero() {
		last := s.LastOccurrence
		v.LastOccurrence = &last
	}
	return v
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.session.Schedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]scheduleView, 0, len(schedules))
	for _, sched := range schedules {
		out = append(out, newScheduleView(sched))
	}
	NewJSONResponse().Write(w, out)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.session.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, newScheduleView(sched))
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := decodeSchedule(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sched.ID != "" {
		if _, err := s.session.Schedule(r.Context(), sched.ID); err == nil {
			writeError(w, r, badRequest("schedule %q already exists", sched.ID))
			return
		} else if !errors.Is(err, storage.ErrScheduleNotFound) {
			writeError(w, r, err)
			return
		}
	}

	if err := s.session.UpsertSchedule(r.Context(), sched); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/schedules/"+sched.ID).
		Write(w, newScheduleView(sched))
}

// handleUpdateSchedule replaces a definition. Counters and postponed
// occurrences survive the replacement.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.session.Schedule(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sched, err := decodeSchedule(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sched.ID != "" && sched.ID != id {
		writeError(w, r, badRequest("schedule id %q does not match path", sched.ID))
		return
	}
	sched.ID = id
	seed.Carry(sched, existing)

	if err := s.session.UpsertSchedule(r.Context(), sched); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Write(w, newScheduleView(sched))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeSchedule(r *http.Request) (*core.Schedule, error) {
	var def seed.Schedule
	if err := decodeJSON(r, &def, false); err != nil {
		return nil, err
	}
	def.ID = sanitizeInput(def.ID)
	def.Name = sanitizeInput(def.Name)
	sched, err := def.ToSchedule()
	if err != nil {
		return nil, badRequest("%v", err)
	}
	return sched, nil
}
