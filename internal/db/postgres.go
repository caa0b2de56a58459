package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
)

var (
	// ErrPlanNotFound is returned when a plan id is unknown.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanCommitted is returned when a plan was already written to the ledger.
	ErrPlanCommitted = errors.New("plan already committed")
	// ErrPlanNotSchedulable is returned when committing a plan without a schedule.
	ErrPlanNotSchedulable = errors.New("plan has no schedule")
	// ErrPlanConflict is returned when committing a plan would push a
	// screen-hour past its slot limit.
	ErrPlanConflict = errors.New("plan conflicts with committed reservations")
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS screens (
    id BIGINT PRIMARY KEY,
    number TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reservations (
    screen_id BIGINT NOT NULL,
    hour TIMESTAMPTZ NOT NULL,
    slots INT NOT NULL CHECK (slots >= 0),
    PRIMARY KEY (screen_id, hour)
);

CREATE TABLE IF NOT EXISTS plans (
    id UUID PRIMARY KEY,
    status TEXT NOT NULL,
    strategy TEXT NOT NULL,
    realized_ots BIGINT NOT NULL,
    available_ots DOUBLE PRECISION NOT NULL,
    committed BOOLEAN NOT NULL DEFAULT FALSE,
    result JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS plan_entries (
    plan_id UUID NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
    screen_id BIGINT NOT NULL,
    hour TIMESTAMPTZ NOT NULL,
    slots INT NOT NULL,
    ots DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (plan_id, screen_id, hour)
);

CREATE INDEX IF NOT EXISTS idx_reservations_hour ON reservations (hour);
CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans (created_at);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.DB == nil {
		return errors.New("postgres not configured")
	}
	return p.DB.PingContext(ctx)
}

// EnsureSchema creates the required tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadScreens returns every known screen ordered by id.
func (p *Postgres) LoadScreens(ctx context.Context) ([]models.Screen, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, number, name FROM screens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query screens: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var screens []models.Screen
	for rows.Next() {
		var s models.Screen
		if err := rows.Scan(&s.ID, &s.Number, &s.Name); err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		screens = append(screens, s)
	}
	return screens, rows.Err()
}

// UpsertScreens inserts or renames screens.
func (p *Postgres) UpsertScreens(ctx context.Context, screens []models.Screen) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO screens (id, number, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET number = EXCLUDED.number, name = EXCLUDED.name`)
		if err != nil {
			return fmt.Errorf("prepare screen upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, s := range screens {
			if _, err := stmt.ExecContext(ctx, s.ID, s.Number, s.Name); err != nil {
				return fmt.Errorf("upsert screen %d: %w", s.ID, err)
			}
		}
		return nil
	})
}

// LoadLedger returns committed slots of the screens for hours in [from, to).
func (p *Postgres) LoadLedger(ctx context.Context, screenIDs []int64, from, to time.Time) (models.ReservationLedger, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT screen_id, hour, slots FROM reservations WHERE screen_id = ANY($1) AND hour >= $2 AND hour < $3`,
		pq.Array(screenIDs), from, to)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ledger := make(models.ReservationLedger)
	for rows.Next() {
		var (
			screenID int64
			hour     time.Time
			slots    int
		)
		if err := rows.Scan(&screenID, &hour, &slots); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		sl, ok := ledger[screenID]
		if !ok {
			sl = make(models.ScreenLedger)
			ledger[screenID] = sl
		}
		sl[hour.Unix()] = slots
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return ledger, nil
}

// ImportReservations replaces the committed slot counts of every
// screen-hour present in ledger. It returns the number of rows written.
func (p *Postgres) ImportReservations(ctx context.Context, ledger models.ReservationLedger) (int, error) {
	n := 0
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO reservations (screen_id, hour, slots) VALUES ($1, $2, $3)
			ON CONFLICT (screen_id, hour) DO UPDATE SET slots = EXCLUDED.slots`)
		if err != nil {
			return fmt.Errorf("prepare reservation import: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for screenID, hours := range ledger {
			for ts, slots := range hours {
				if _, err := stmt.ExecContext(ctx, screenID, time.Unix(ts, 0).UTC(), slots); err != nil {
					return fmt.Errorf("import reservation for screen %d: %w", screenID, err)
				}
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SavePlan stores a plan result and its schedule entries.
func (p *Postgres) SavePlan(ctx context.Context, plan *models.PlanResult) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", plan.ID, err)
	}
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plans (id, status, strategy, realized_ots, available_ots, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			plan.ID, string(plan.Status), plan.Strategy, plan.RealizedOTS, plan.AvailableOTS, payload, plan.CreatedAt); err != nil {
			return fmt.Errorf("insert plan %s: %w", plan.ID, err)
		}
		if plan.Schedule.Len() == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO plan_entries (plan_id, screen_id, hour, slots, ots) VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("prepare plan entries: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for screenID, hours := range plan.Schedule {
			for ts, e := range hours {
				if _, err := stmt.ExecContext(ctx, plan.ID, screenID, time.Unix(ts, 0).UTC(), e.Slots, e.OTS); err != nil {
					return fmt.Errorf("insert plan entry: %w", err)
				}
			}
		}
		return nil
	})
}

// LoadPlan returns a stored plan and whether it has been committed.
func (p *Postgres) LoadPlan(ctx context.Context, id string) (*models.PlanResult, bool, error) {
	var (
		payload   []byte
		committed bool
	)
	err := p.DB.QueryRowContext(ctx, `SELECT result, committed FROM plans WHERE id = $1`, id).Scan(&payload, &committed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrPlanNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load plan %s: %w", id, err)
	}
	var plan models.PlanResult
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, false, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return &plan, committed, nil
}

// CommitPlan adds a stored plan's entries to the reservation ledger and
// marks the plan committed. If any screen-hour would exceed maxSlots the
// transaction is rolled back with ErrPlanConflict. It returns the number of
// screen-hours touched.
func (p *Postgres) CommitPlan(ctx context.Context, id string, maxSlots int) (int64, error) {
	var touched int64
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		var committed bool
		err := tx.QueryRowContext(ctx, `SELECT committed FROM plans WHERE id = $1 FOR UPDATE`, id).Scan(&committed)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlanNotFound
		}
		if err != nil {
			return fmt.Errorf("lock plan %s: %w", id, err)
		}
		if committed {
			return ErrPlanCommitted
		}
		// Concurrent commits of other plans must not slip in between the
		// capacity check and the insert.
		if _, err := tx.ExecContext(ctx, `LOCK TABLE reservations IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock reservations: %w", err)
		}
		var (
			screenID        int64
			hour            time.Time
			planned, booked int
		)
		err = tx.QueryRowContext(ctx, `SELECT e.screen_id, e.hour, e.slots, COALESCE(r.slots, 0)
			FROM plan_entries e
			LEFT JOIN reservations r ON r.screen_id = e.screen_id AND r.hour = e.hour
			WHERE e.plan_id = $1 AND e.slots + COALESCE(r.slots, 0) > $2
			ORDER BY e.screen_id, e.hour LIMIT 1`, id, maxSlots).Scan(&screenID, &hour, &planned, &booked)
		switch {
		case err == nil:
			return fmt.Errorf("%w: screen %d at %s has %d committed, plan adds %d, limit %d",
				ErrPlanConflict, screenID, hour.UTC().Format(time.RFC3339), booked, planned, maxSlots)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check plan %s capacity: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO reservations (screen_id, hour, slots)
			SELECT screen_id, hour, slots FROM plan_entries WHERE plan_id = $1
			ON CONFLICT (screen_id, hour) DO UPDATE SET slots = reservations.slots + EXCLUDED.slots`, id)
		if err != nil {
			return fmt.Errorf("reserve plan %s: %w", id, err)
		}
		touched, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `UPDATE plans SET committed = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("mark plan %s committed: %w", id, err)
		}
		return nil
	})
	return touched, err
}

func (p *Postgres) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
