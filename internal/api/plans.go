package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/openslot/internal/ingest"
	"github.com/patrickwarner/openslot/internal/models"
)

// StoredPlan is the body returned by GET /plans/{id}.
type StoredPlan struct {
	Plan      *models.PlanResult `json:"plan"`
	Committed bool               `json:"committed"`
}

// GetPlanHandler returns a stored plan.
func (s *Server) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plans"
	if s.Store == nil {
		s.observe(endpoint, r.Method, s.fail(w, r, errNoStore), start)
		return
	}
	plan, committed, err := s.Store.LoadPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	writeJSON(w, http.StatusOK, StoredPlan{Plan: plan, Committed: committed})
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// ExportPlanHandler renders a stored plan as a workbook.
func (s *Server) ExportPlanHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plans_export"
	if s.Store == nil {
		s.observe(endpoint, r.Method, s.fail(w, r, errNoStore), start)
		return
	}
	ctx := r.Context()
	plan, _, err := s.Store.LoadPlan(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	screens, err := s.Store.LoadScreens(ctx)
	if err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	numbers := make(map[int64]string, len(screens))
	for _, sc := range screens {
		numbers[sc.ID] = sc.Number
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plan-%s.xlsx"`, plan.ID))
	if err := ingest.WriteSchedule(w, plan, numbers, s.Planner.Options().Location); err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// CommitPlanHandler commits a stored plan to the reservation ledger.
func (s *Server) CommitPlanHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plans_commit"
	if s.Store == nil || s.Ledger == nil {
		s.observe(endpoint, r.Method, s.fail(w, r, errNoStore), start)
		return
	}
	ctx := r.Context()
	plan, committed, err := s.Store.LoadPlan(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	if committed {
		writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, Stored: true, Committed: true})
		s.observe(endpoint, r.Method, http.StatusOK, start)
		return
	}
	hours, err := s.Ledger.Commit(ctx, plan)
	if err != nil {
		s.observe(endpoint, r.Method, s.fail(w, r, err), start)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, Stored: true, Committed: true, CommitHours: hours})
	s.observe(endpoint, r.Method, http.StatusOK, start)
}
