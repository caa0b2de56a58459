package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/ingest"
)

// maxUploadBytes bounds the multipart form kept in memory.
const maxUploadBytes = 32 << 20

// ImportResponse is the body returned by POST /ledger/import.
type ImportResponse struct {
	Screens int `json:"screens"`
	Hours   int `json:"hours"`
}

// ImportLedgerHandler loads an inventory workbook into the reservation
// ledger. The form carries the workbook as "inventory" and optionally the
// player export as "players", which is upserted first and used to resolve
// screen numbers.
func (s *Server) ImportLedgerHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "ledger_import"
	method := r.Method
	ctx := r.Context()

	if s.Store == nil {
		s.observe(endpoint, method, s.fail(w, r, errNoStore), start)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid form: %v", err)})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}

	var players map[string]int64
	if pf, _, err := r.FormFile("players"); err == nil {
		screens, err := ingest.ParsePlayers(pf)
		_ = pf.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			s.observe(endpoint, method, http.StatusBadRequest, start)
			return
		}
		if err := s.Store.UpsertScreens(ctx, screens); err != nil {
			s.observe(endpoint, method, s.fail(w, r, err), start)
			return
		}
		players = ingest.PlayerIDs(screens)
	} else {
		screens, err := s.Store.LoadScreens(ctx)
		if err != nil {
			s.observe(endpoint, method, s.fail(w, r, err), start)
			return
		}
		players = ingest.PlayerIDs(screens)
	}

	inv, _, err := r.FormFile("inventory")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "inventory file is required"})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	defer func() { _ = inv.Close() }()

	opts := s.Planner.Options()
	ledger, err := ingest.ParseInventory(inv, players, ingest.InventoryOptions{
		Location: opts.Location,
		MaxSlots: opts.Tiers.Max(),
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	n, err := s.Store.ImportReservations(ctx, ledger)
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}

	s.logger(r).Info("ledger imported", zap.Int("screens", len(ledger)), zap.Int("hours", n))
	writeJSON(w, http.StatusOK, ImportResponse{Screens: len(ledger), Hours: n})
	s.observe(endpoint, method, http.StatusOK, start)
}
