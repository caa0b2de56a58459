package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/api"
	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/planner"
)

// PlanScheduleInput is the argument of the plan_schedule tool.
type PlanScheduleInput struct {
	Requests []models.AdvertisementRequest `json:"requests"`
	Strategy string                        `json:"strategy,omitempty"`
	Commit   bool                          `json:"commit,omitempty"`
}

// CheckFeasibilityInput is the argument of the check_feasibility tool.
type CheckFeasibilityInput struct {
	Requests []models.AdvertisementRequest `json:"requests"`
}

// PlanSummary is the tool view of a plan: figures first, the per screen
// schedule last.
type PlanSummary struct {
	PlanID          string                  `json:"plan_id"`
	Status          models.PlanStatus       `json:"status"`
	Strategy        string                  `json:"strategy"`
	RealizedOTS     int64                   `json:"realized_ots"`
	AvailableOTS    float64                 `json:"available_ots"`
	BudgetExhausted bool                    `json:"budget_exhausted"`
	Committed       bool                    `json:"committed"`
	Requests        []models.RequestOutcome `json:"requests"`
	Schedule        []ScheduledHour         `json:"schedule,omitempty"`
}

// ScheduledHour is one screen-hour of a plan.
type ScheduledHour struct {
	ScreenID int64     `json:"screen_id"`
	Hour     time.Time `json:"hour"`
	Slots    int       `json:"slots"`
	OTS      float64   `json:"ots"`
}

type slotServer struct {
	planner   *planner.Planner
	forecasts api.ForecastSource
	store     api.PlanStore
	ledger    api.Committer
	logger    *zap.Logger
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}}}, nil
}

func (s *slotServer) inputs(ctx context.Context, requests []models.AdvertisementRequest) (models.Forecast, models.ReservationLedger, error) {
	ids, from, to := models.Window(requests)
	forecast, err := s.forecasts.Load(ctx, ids, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load forecast: %w", err)
	}
	ledger, err := s.store.LoadLedger(ctx, ids, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger: %w", err)
	}
	return forecast, ledger, nil
}

// PlanSchedule implements the plan_schedule tool.
func (s *slotServer) PlanSchedule(ctx context.Context, _ *mcp.CallToolRequest, in PlanScheduleInput) (*mcp.CallToolResult, any, error) {
	forecast, ledger, err := s.inputs(ctx, in.Requests)
	if err != nil {
		return toolError(err), nil, nil
	}

	var plan *models.PlanResult
	switch in.Strategy {
	case "", planner.StrategyOptimal:
		plan, err = s.planner.Plan(ctx, in.Requests, forecast, ledger)
	case planner.StrategyGreedy:
		plan, err = s.planner.Greedy(ctx, in.Requests, forecast, ledger)
	default:
		err = fmt.Errorf("unknown strategy %q", in.Strategy)
	}
	if err != nil {
		return toolError(err), nil, nil
	}
	if err := s.store.SavePlan(ctx, plan); err != nil {
		return nil, nil, err
	}

	summary := summarize(plan)
	if in.Commit && plan.Status.HasSchedule() {
		if _, err := s.ledger.Commit(ctx, plan); err != nil {
			s.logger.Warn("commit plan", zap.String("plan_id", plan.ID), zap.Error(err))
			return toolError(fmt.Errorf("plan %s stored but not committed: %w", plan.ID, err)), nil, nil
		}
		summary.Committed = true
	}
	s.logger.Info("plan_schedule",
		zap.String("plan_id", plan.ID),
		zap.String("status", string(plan.Status)),
		zap.Bool("committed", summary.Committed),
	)
	res, err := toolJSON(summary)
	return res, nil, err
}

// CheckFeasibility implements the check_feasibility tool.
func (s *slotServer) CheckFeasibility(ctx context.Context, _ *mcp.CallToolRequest, in CheckFeasibilityInput) (*mcp.CallToolResult, any, error) {
	forecast, ledger, err := s.inputs(ctx, in.Requests)
	if err != nil {
		return toolError(err), nil, nil
	}
	outcomes, err := s.planner.Check(ctx, in.Requests, forecast, ledger)
	if err != nil {
		return toolError(err), nil, nil
	}
	resp := api.FeasibilityResponse{Feasible: true, Requests: outcomes}
	for _, o := range outcomes {
		resp.Feasible = resp.Feasible && o.Feasible
	}
	res, err := toolJSON(resp)
	return res, nil, err
}

func summarize(plan *models.PlanResult) PlanSummary {
	summary := PlanSummary{
		PlanID:          plan.ID,
		Status:          plan.Status,
		Strategy:        plan.Strategy,
		RealizedOTS:     plan.RealizedOTS,
		AvailableOTS:    plan.AvailableOTS,
		BudgetExhausted: plan.BudgetExhausted,
		Requests:        plan.Requests,
	}
	for screenID, hours := range plan.Schedule {
		for ts, e := range hours {
			summary.Schedule = append(summary.Schedule, ScheduledHour{
				ScreenID: screenID,
				Hour:     time.Unix(ts, 0).UTC(),
				Slots:    e.Slots,
				OTS:      e.OTS,
			})
		}
	}
	sort.Slice(summary.Schedule, func(i, j int) bool {
		a, b := summary.Schedule[i], summary.Schedule[j]
		if !a.Hour.Equal(b.Hour) {
			return a.Hour.Before(b.Hour)
		}
		return a.ScreenID < b.ScreenID
	})
	// per-request schedules repeat the aggregate one
	for i := range summary.Requests {
		summary.Requests[i].Schedule = nil
	}
	return summary
}

var requestSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id": map[string]interface{}{
			"type":        "string",
			"description": "Optional campaign label carried into results",
		},
		"screen_ids": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "integer"},
			"description": "Screens the campaign may run on",
		},
		"desired_ots": map[string]interface{}{
			"type":        "number",
			"description": "Exposure target (OTS) to reach",
		},
		"start_date": map[string]interface{}{
			"type":        "string",
			"format":      "date-time",
			"description": "Campaign start, inclusive",
		},
		"end_date": map[string]interface{}{
			"type":        "string",
			"format":      "date-time",
			"description": "Campaign end, exclusive",
		},
		"week_days": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 6},
			"description": "Eligible days, Monday = 0",
		},
		"hours": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 23},
			"description": "Eligible hours of day in the planning timezone",
		},
		"frequency": map[string]interface{}{
			"type":        "integer",
			"description": "Per-hour slot cap, one of the standard tiers",
		},
	},
	"required": []string{"screen_ids", "desired_ots", "start_date", "end_date", "week_days", "hours", "frequency"},
}

func newMCPServer(s *slotServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "openslot",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "plan_schedule",
		Description: "Plan display slots for a batch of advertising requests against the OTS forecast and the reservation ledger",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"requests": map[string]interface{}{
					"type":  "array",
					"items": requestSchema,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"enum":        []string{planner.StrategyOptimal, planner.StrategyGreedy},
					"description": "Scheduling strategy (optional, defaults to optimal)",
				},
				"commit": map[string]interface{}{
					"type":        "boolean",
					"description": "Reserve the planned slots in the ledger",
				},
			},
			"required": []string{"requests"},
		},
	}, s.PlanSchedule)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_feasibility",
		Description: "Check whether each request's eligible inventory can deliver its OTS target",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"requests": map[string]interface{}{
					"type":  "array",
					"items": requestSchema,
				},
			},
			"required": []string{"requests"},
		},
	}, s.CheckFeasibility)

	return server
}
