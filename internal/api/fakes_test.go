package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/db"
	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/planner"
)

type memoryForecasts struct {
	forecast models.Forecast
	calls    int
	written  models.Forecast
}

func (m *memoryForecasts) Write(_ context.Context, f models.Forecast) error {
	m.written = f
	return nil
}

func (m *memoryForecasts) Load(_ context.Context, screenIDs []int64, _, _ time.Time) (models.Forecast, error) {
	m.calls++
	return m.forecast.Subset(screenIDs), nil
}

type memoryStore struct {
	mu        sync.Mutex
	ledger    models.ReservationLedger
	screens   []models.Screen
	plans     map[string]*models.PlanResult
	committed map[string]bool
	imported  models.ReservationLedger
	pingErr   error
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		ledger:    make(models.ReservationLedger),
		plans:     make(map[string]*models.PlanResult),
		committed: make(map[string]bool),
	}
}

func (m *memoryStore) LoadLedger(context.Context, []int64, time.Time, time.Time) (models.ReservationLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(models.ReservationLedger, len(m.ledger))
	for id, hours := range m.ledger {
		out[id] = make(models.ScreenLedger, len(hours))
		for ts, n := range hours {
			out[id][ts] = n
		}
	}
	return out, nil
}

func (m *memoryStore) ImportReservations(_ context.Context, ledger models.ReservationLedger) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported = ledger
	n := 0
	for _, hours := range ledger {
		n += len(hours)
	}
	return n, nil
}

func (m *memoryStore) LoadScreens(context.Context) ([]models.Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Screen(nil), m.screens...), nil
}

func (m *memoryStore) UpsertScreens(_ context.Context, screens []models.Screen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screens = append(m.screens, screens...)
	return nil
}

func (m *memoryStore) SavePlan(_ context.Context, plan *models.PlanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	return nil
}

func (m *memoryStore) LoadPlan(_ context.Context, id string) (*models.PlanResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, false, db.ErrPlanNotFound
	}
	return plan, m.committed[id], nil
}

// memoryLedger commits into a memoryStore the way db.Ledger commits into
// Postgres.
type memoryLedger struct {
	store *memoryStore
}

func (l *memoryLedger) Commit(_ context.Context, plan *models.PlanResult) (int64, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if !plan.Status.HasSchedule() {
		return 0, db.ErrPlanNotSchedulable
	}
	if l.store.committed[plan.ID] {
		return 0, db.ErrPlanCommitted
	}
	for screenID, entries := range plan.Schedule {
		for ts, e := range entries {
			if l.store.ledger.Committed(screenID, ts)+e.Slots > 72 {
				return 0, db.ErrPlanConflict
			}
		}
	}
	var hours int64
	for screenID, entries := range plan.Schedule {
		for ts, e := range entries {
			l.store.ledger.Reserve(screenID, ts, e.Slots, 72)
			hours++
		}
	}
	l.store.committed[plan.ID] = true
	return hours, nil
}

func novosibirsk() *time.Location {
	loc, err := time.LoadLocation("Asia/Novosibirsk")
	if err != nil {
		panic(err)
	}
	return loc
}

// singleSlot is screen 257 at 2021-09-06 01:00 with an OTS of 4322.
func singleSlot() (models.Forecast, int64) {
	ts := time.Date(2021, 9, 6, 1, 0, 0, 0, novosibirsk()).Unix()
	return models.Forecast{257: {ts: 4322}}, ts
}

func singleSlotRequest(desired float64) models.AdvertisementRequest {
	loc := novosibirsk()
	return models.AdvertisementRequest{
		ID:         "campaign",
		ScreenIDs:  []int64{257},
		DesiredOTS: desired,
		StartDate:  time.Date(2021, 9, 6, 0, 0, 0, 0, loc),
		EndDate:    time.Date(2021, 9, 7, 0, 0, 0, 0, loc),
		WeekDays:   []int{0},
		Hours:      []int{1},
		Frequency:  72,
	}
}

type testEnv struct {
	server    *Server
	forecasts *memoryForecasts
	store     *memoryStore
	metrics   *observability.MockMetricsRegistry
}

// newTestEnv builds a server. withStores wires in-memory forecast, plan and
// ledger stores; otherwise every input must be sent inline.
func newTestEnv(withStores bool, cfg config.Config) *testEnv {
	opts := planner.DefaultOptions()
	metrics := observability.NewMockMetricsRegistry()
	p, err := planner.New(opts, nil, zap.NewNop(), metrics)
	if err != nil {
		panic(err)
	}
	env := &testEnv{metrics: metrics}
	if !withStores {
		env.server = NewServer(zap.NewNop(), p, nil, nil, nil, metrics, cfg)
		return env
	}
	forecast, _ := singleSlot()
	env.forecasts = &memoryForecasts{forecast: forecast}
	env.store = newMemoryStore()
	env.server = NewServer(zap.NewNop(), p, env.forecasts, env.store, &memoryLedger{store: env.store}, metrics, cfg)
	return env
}
