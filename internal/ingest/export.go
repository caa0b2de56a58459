package ingest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/patrickwarner/openslot/internal/models"
)

// Sheet names of an exported plan.
const (
	SheetSlots   = "Slots"
	SheetOTS     = "OTS"
	SheetSummary = "Summary"
)

type dayKey struct {
	screen int64
	day    time.Time
}

// WriteSchedule renders a plan as a workbook: per screen and day the
// assigned slots and the realized OTS of every hour, plus a summary sheet.
// screenNumbers maps screen ids to the numbers shown to sales; ids without a
// number are printed as is.
func WriteSchedule(w io.Writer, plan *models.PlanResult, screenNumbers map[int64]string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSlots); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetOTS); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}

	slots := make(map[dayKey]*[24]int)
	ots := make(map[dayKey]*[24]float64)
	for screenID, hours := range plan.Schedule {
		for ts, e := range hours {
			t := time.Unix(ts, 0).In(loc)
			k := dayKey{screen: screenID, day: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)}
			if slots[k] == nil {
				slots[k] = new([24]int)
				ots[k] = new([24]float64)
			}
			slots[k][t.Hour()] += e.Slots
			ots[k][t.Hour()] += e.OTS
		}
	}
	keys := make([]dayKey, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].day.Equal(keys[j].day) {
			return keys[i].day.Before(keys[j].day)
		}
		return keys[i].screen < keys[j].screen
	})

	header := []interface{}{"Date", "Screen"}
	for h := 0; h < 24; h++ {
		header = append(header, strconv.Itoa(h))
	}
	for _, sheet := range []string{SheetSlots, SheetOTS} {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
	}

	for i, k := range keys {
		number, ok := screenNumbers[k.screen]
		if !ok {
			number = strconv.FormatInt(k.screen, 10)
		}
		date := k.day.Format("2006-01-02")
		slotRow := []interface{}{date, number}
		otsRow := []interface{}{date, number}
		for h := 0; h < 24; h++ {
			slotRow = append(slotRow, slots[k][h])
			otsRow = append(otsRow, math.Round(ots[k][h]*100)/100)
		}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSlots, cellName, &slotRow); err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetOTS, cellName, &otsRow); err != nil {
			return err
		}
	}

	if err := writeSummary(f, plan); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, plan *models.PlanResult) error {
	rows := [][]interface{}{
		{"Plan", plan.ID},
		{"Status", string(plan.Status)},
		{"Strategy", plan.Strategy},
		{"Realized OTS", plan.RealizedOTS},
		{"Available OTS", math.Round(plan.AvailableOTS)},
		{"Budget exhausted", plan.BudgetExhausted},
		{},
		{"Request", "ID", "Desired OTS", "Available OTS", "Realized OTS", "Feasible"},
	}
	for _, r := range plan.Requests {
		rows = append(rows, []interface{}{r.Index, r.ID, r.DesiredOTS, math.Round(r.AvailableOTS), math.Round(r.RealizedOTS), r.Feasible})
	}
	for i := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSummary, cellName, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
