// Package ingest converts the spreadsheets and files exchanged with sales
// and the forecasting service into planner inputs, and plans back into
// workbooks.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/patrickwarner/openslot/internal/models"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing column")

// findIndex returns the first column whose header matches one of the
// candidates, ignoring case and surrounding space, or -1.
func findIndex(header []string, candidates ...string) int {
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, c := range candidates {
			if strings.EqualFold(h, c) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParsePlayers reads the ';' separated player export and returns the
// screens it lists. PlayerNumber is the number used by inventory workbooks,
// PlayerId the id used by forecasts.
func ParsePlayers(r io.Reader) ([]models.Screen, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read player csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("player csv: %w: PlayerNumber", ErrMissingColumn)
	}
	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	numberCol := findIndex(header, "PlayerNumber")
	idCol := findIndex(header, "PlayerId", "PlayerID")
	nameCol := findIndex(header, "PlayerName", "Name")
	if numberCol < 0 {
		return nil, fmt.Errorf("player csv: %w: PlayerNumber", ErrMissingColumn)
	}
	if idCol < 0 {
		return nil, fmt.Errorf("player csv: %w: PlayerId", ErrMissingColumn)
	}

	var screens []models.Screen
	for n, row := range rows[1:] {
		number := cell(row, numberCol)
		if number == "" {
			continue
		}
		id, err := strconv.ParseInt(cell(row, idCol), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("player csv line %d: invalid PlayerId %q", n+2, cell(row, idCol))
		}
		screens = append(screens, models.Screen{ID: id, Number: number, Name: cell(row, nameCol)})
	}
	return screens, nil
}

// PlayerIDs indexes screens by number.
func PlayerIDs(screens []models.Screen) map[string]int64 {
	ids := make(map[string]int64, len(screens))
	for _, s := range screens {
		ids[s.Number] = s.ID
	}
	return ids
}

// InventoryOptions controls inventory parsing.
type InventoryOptions struct {
	// Location is the timezone the workbook's dates are in.
	Location *time.Location
	// MaxSlots is the slot count of a full hour.
	MaxSlots int
}

// ParseInventory reads the inventory workbook: one row per screen and day
// with the date, the screen number and 24 hour columns holding the slots
// still free. The result is the committed ledger, MaxSlots - free per hour.
// Only the first sheet is read.
func ParseInventory(r io.Reader, players map[string]int64, opts InventoryOptions) (models.ReservationLedger, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open inventory workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read inventory rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("inventory: %w: date", ErrMissingColumn)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	header := rows[0]
	dateCol := findIndex(header, "Дата", "Date")
	screenCol := findIndex(header, "ID экрана", "Screen", "ScreenNumber")
	if dateCol < 0 {
		return nil, fmt.Errorf("inventory: %w: date", ErrMissingColumn)
	}
	if screenCol < 0 {
		return nil, fmt.Errorf("inventory: %w: screen", ErrMissingColumn)
	}
	var hourCols [24]int
	for h := range hourCols {
		hourCols[h] = findIndex(header, strconv.Itoa(h))
		if hourCols[h] < 0 {
			return nil, fmt.Errorf("inventory: %w: hour %d", ErrMissingColumn, h)
		}
	}

	ledger := make(models.ReservationLedger)
	for n, row := range rows[1:] {
		line := n + 2
		number := cell(row, screenCol)
		if number == "" && cell(row, dateCol) == "" {
			continue
		}
		screenID, ok := players[number]
		if !ok {
			return nil, fmt.Errorf("inventory row %d: unknown screen %q", line, number)
		}
		day, err := parseDate(cell(row, dateCol), loc)
		if err != nil {
			return nil, fmt.Errorf("inventory row %d: %w", line, err)
		}
		sl, ok := ledger[screenID]
		if !ok {
			sl = make(models.ScreenLedger)
			ledger[screenID] = sl
		}
		for h, col := range hourCols {
			raw := cell(row, col)
			if raw == "" {
				continue
			}
			free, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("inventory row %d hour %d: invalid slot count %q", line, h, raw)
			}
			committed := opts.MaxSlots - int(math.Round(free))
			committed = max(0, min(committed, opts.MaxSlots))
			ts := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc).Unix()
			sl[ts] = committed
		}
	}
	return ledger, nil
}

// parseDate accepts Excel serial dates as well as ISO and dotted text dates.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
