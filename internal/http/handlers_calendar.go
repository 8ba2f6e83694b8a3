package http

import (
	"bytes"
	"log/slog"
	"net/http"

	"sxledger/internal/calendar"
	"sxledger/internal/core"
	"sxledger/internal/sx"
)

const calendarName = "Scheduled transactions"

type cashflowResponse struct {
	From   core.Date         `json:"from"`
	To     core.Date         `json:"to"`
	Totals map[string]string `json:"totals"`
	Errors []string          `json:"errors,omitempty"`
}

// handleCashflow projects per-account totals of every enabled schedule
// over [from, to]. Defaults to the next 30 days.
func (s *Server) handleCashflow(w http.ResponseWriter, r *http.Request) {
	today := core.DateOf(s.now())
	from, err := parseDateParam(r, "from", today)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDateParam(r, "to", from.AddDays(30))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if to.Compare(from) < 0 {
		writeError(w, r, badRequest("to must not be before from"))
		return
	}

	schedules, err := s.session.Schedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, errs := sx.Cashflow(r.Context(), s.eval, schedules, from, to)

	resp := cashflowResponse{From: from, To: to, Totals: make(map[string]string, len(totals))}
	for account, amount := range totals {
		resp.Totals[account] = amount.StringFixed(2)
	}
	for _, e := range errs {
		resp.Errors = append(resp.Errors, e.Error())
	}
	NewJSONResponse().Write(w, resp)
}

// handleCalendar exports the pending instances of the current window plus
// a forecast of the following days as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r, "days", 90, 1, 730)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		window   []calendar.Occurrence
		rangeEnd core.Date
	)
	if err := s.session.Inspect(r.Context(), func(m *sx.Model) {
		window = calendar.FromGroups(m.Groups())
		rangeEnd = m.RangeEnd()
	}); err != nil {
		writeError(w, r, err)
		return
	}

	schedules, err := s.session.Schedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	forecast, errs := calendar.Forecast(schedules, rangeEnd, rangeEnd.AddDays(days), 0)
	for _, e := range errs {
		slog.WarnContext(r.Context(), "Skipping schedule in calendar", "error", e)
	}

	var buf bytes.Buffer
	if err := calendar.Write(&buf, calendarName, calendar.Merge(window, forecast), s.now()); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="sxledger.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
