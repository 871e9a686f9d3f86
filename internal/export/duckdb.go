package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/resmon/internal/duckdb"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/safe"
	"github.com/coral-mesh/resmon/internal/sysinfo"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// ErrSessionNotFound is returned by LoadSession for an unknown session ID or
// an empty database.
var ErrSessionNotFound = errors.New("session not found")

const (
	sessionsTable    = "sessions"
	samplesTable     = "samples"
	annotationsTable = "annotations"
)

var storeDDL = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR PRIMARY KEY,
		target_pid INTEGER NOT NULL,
		target_name VARCHAR,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		reason VARCHAR,
		interval_ms BIGINT,
		telemetry_status VARCHAR,
		system VARCHAR,
		system_json VARCHAR,
		version VARCHAR
	)`,

	`CREATE TABLE IF NOT EXISTS samples (
		session_id VARCHAR NOT NULL,
		seq INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		memory_bytes BIGINT NOT NULL,
		cpu_percent DOUBLE NOT NULL,
		threads INTEGER,
		swap_bytes BIGINT,
		memory_pressure VARCHAR,
		processes INTEGER,
		gpu_active_percent DOUBLE,
		gpu_power_watts DOUBLE,
		ane_power_watts DOUBLE,
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS annotations (
		session_id VARCHAR NOT NULL,
		seq INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		received_at TIMESTAMP NOT NULL,
		label VARCHAR,
		sample_index INTEGER,
		PRIMARY KEY (session_id, seq)
	)`,
}

type sessionRow struct {
	ID              string    `duckdb:"id,pk"`
	TargetPID       int32     `duckdb:"target_pid"`
	TargetName      string    `duckdb:"target_name"`
	StartedAt       time.Time `duckdb:"started_at,immutable"`
	EndedAt         time.Time `duckdb:"ended_at"`
	Reason          string    `duckdb:"reason"`
	IntervalMS      int64     `duckdb:"interval_ms"`
	TelemetryStatus string    `duckdb:"telemetry_status"`
	System          string    `duckdb:"system"`
	SystemJSON      string    `duckdb:"system_json"`
	Version         string    `duckdb:"version"`
}

type sampleRow struct {
	SessionID        string          `duckdb:"session_id,pk"`
	Seq              int32           `duckdb:"seq,pk"`
	Timestamp        time.Time       `duckdb:"timestamp"`
	ElapsedMS        int64           `duckdb:"elapsed_ms"`
	MemoryBytes      int64           `duckdb:"memory_bytes"`
	CPUPercent       float64         `duckdb:"cpu_percent"`
	Threads          int32           `duckdb:"threads"`
	SwapBytes        int64           `duckdb:"swap_bytes"`
	MemoryPressure   string          `duckdb:"memory_pressure"`
	Processes        int32           `duckdb:"processes"`
	GPUActivePercent sql.NullFloat64 `duckdb:"gpu_active_percent"`
	GPUPowerWatts    sql.NullFloat64 `duckdb:"gpu_power_watts"`
	ANEPowerWatts    sql.NullFloat64 `duckdb:"ane_power_watts"`
}

type annotationRow struct {
	SessionID   string    `duckdb:"session_id,pk"`
	Seq         int32     `duckdb:"seq,pk"`
	Timestamp   time.Time `duckdb:"timestamp"`
	ReceivedAt  time.Time `duckdb:"received_at,immutable"`
	Label       string    `duckdb:"label"`
	SampleIndex int32     `duckdb:"sample_index"`
}

// SessionInfo is one row of the session listing.
type SessionInfo struct {
	Meta
	StartedAt time.Time
	EndedAt   time.Time
	Samples   int
}

// StoredSession is a session read back from the database.
type StoredSession struct {
	Meta    Meta
	Dataset *timeline.Dataset
}

// DuckDBStore persists sessions in a DuckDB database. Saving the same
// session twice overwrites its rows.
type DuckDBStore struct {
	db     *sql.DB
	path   string
	owned  bool
	logger zerolog.Logger
}

// OpenDuckDB opens or creates the database at path and ensures the schema.
// Close releases the database.
func OpenDuckDB(ctx context.Context, path string, logger zerolog.Logger) (*DuckDBStore, error) {
	db, err := duckdb.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	store, err := NewDuckDBStore(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.path = path
	store.owned = true
	return store, nil
}

// NewDuckDBStore wraps an open database and ensures the schema. The caller
// keeps ownership of db.
func NewDuckDBStore(ctx context.Context, db *sql.DB, logger zerolog.Logger) (*DuckDBStore, error) {
	s := &DuckDBStore{
		db:     db,
		logger: logger.With().Str("component", "duckdb_store").Logger(),
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DuckDBStore) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rerrors.DeferRollback(s.logger, tx)

	for _, ddl := range storeDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// Save writes the session, its samples and its annotations in one transaction.
func (s *DuckDBStore) Save(ctx context.Context, ds *timeline.Dataset, meta Meta) error {
	if meta.SessionID == "" {
		return rerrors.New(rerrors.CodeConfigInvalid, "session id is required")
	}

	systemJSON, err := json.Marshal(meta.System)
	if err != nil {
		return fmt.Errorf("failed to encode system descriptor: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rerrors.DeferRollback(s.logger, tx)

	session := &sessionRow{
		ID:              meta.SessionID,
		TargetPID:       meta.TargetPID,
		TargetName:      meta.TargetName,
		StartedAt:       ds.StartedAt,
		EndedAt:         ds.EndedAt,
		Reason:          meta.Reason,
		IntervalMS:      meta.Interval.Milliseconds(),
		TelemetryStatus: meta.TelemetryStatus,
		System:          meta.System.String(),
		SystemJSON:      string(systemJSON),
		Version:         meta.Version,
	}
	if err := duckdb.NewTable[sessionRow](tx, sessionsTable).Upsert(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	samples := make([]*sampleRow, 0, len(ds.Samples))
	for _, smp := range ds.Samples {
		samples = append(samples, toSampleRow(meta.SessionID, smp))
	}
	if err := duckdb.NewTable[sampleRow](tx, samplesTable).BatchUpsert(ctx, samples); err != nil {
		return fmt.Errorf("failed to save samples: %w", err)
	}

	annotations := make([]*annotationRow, 0, len(ds.Annotations))
	for _, a := range ds.Annotations {
		annotations = append(annotations, &annotationRow{
			SessionID:   meta.SessionID,
			Seq:         int32(a.Seq), // #nosec G115 - bounded by session length
			Timestamp:   a.Timestamp,
			ReceivedAt:  a.ReceivedAt,
			Label:       a.Label,
			SampleIndex: int32(a.SampleIndex), // #nosec G115
		})
	}
	if err := duckdb.NewTable[annotationRow](tx, annotationsTable).BatchUpsert(ctx, annotations); err != nil {
		return fmt.Errorf("failed to save annotations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	s.logger.Debug().
		Str("session_id", meta.SessionID).
		Int("samples", len(samples)).
		Int("annotations", len(annotations)).
		Msg("Session saved")
	return nil
}

// Sessions lists stored sessions, newest first.
func (s *DuckDBStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.query(ctx, duckdb.NewQueryBuilder(sessionsTable).OrderBy("-started_at"))
	if err != nil {
		return nil, err
	}

	counts, err := s.sampleCounts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionInfo{
			Meta:      r.meta(s.logger),
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
			Samples:   counts[r.ID],
		})
	}
	return out, nil
}

// LoadSession reads a session back. An empty id selects the most recent one.
func (s *DuckDBStore) LoadSession(ctx context.Context, id string) (*StoredSession, error) {
	b := duckdb.NewQueryBuilder(sessionsTable).Eq("id", id).OrderBy("-started_at").Limit(1)
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if id == "" {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session := rows[0]

	sampleRows, err := duckdb.NewTable[sampleRow](s.db, samplesTable).Query(ctx,
		duckdb.NewQueryBuilder(samplesTable).Eq("session_id", session.ID).OrderBy("seq"))
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	annotationRows, err := duckdb.NewTable[annotationRow](s.db, annotationsTable).Query(ctx,
		duckdb.NewQueryBuilder(annotationsTable).Eq("session_id", session.ID).OrderBy("seq"))
	if err != nil {
		return nil, fmt.Errorf("failed to load annotations: %w", err)
	}

	samples := make([]timeline.Sample, 0, len(sampleRows))
	for _, r := range sampleRows {
		samples = append(samples, r.sample())
	}
	annotations := make([]timeline.Annotation, 0, len(annotationRows))
	for _, r := range annotationRows {
		annotations = append(annotations, timeline.Annotation{
			Seq:         int(r.Seq),
			Timestamp:   r.Timestamp,
			ReceivedAt:  r.ReceivedAt,
			Label:       r.Label,
			SampleIndex: int(r.SampleIndex),
		})
	}

	return &StoredSession{
		Meta: session.meta(s.logger),
		Dataset: &timeline.Dataset{
			ID:          session.ID,
			StartedAt:   session.StartedAt,
			EndedAt:     session.EndedAt,
			Samples:     samples,
			Annotations: annotations,
			Summary:     timeline.Summarize(samples, len(annotations)),
		},
	}, nil
}

// Close closes the database when the store opened it and hands the file to
// the sudo user.
func (s *DuckDBStore) Close() error {
	if !s.owned {
		return nil
	}
	err := s.db.Close()
	if s.path != "" {
		if ferr := privilege.FixFileOwnership(s.path); ferr != nil {
			s.logger.Warn().Err(ferr).Str("path", s.path).Msg("Failed to fix database file ownership")
		}
	}
	return err
}

func (s *DuckDBStore) query(ctx context.Context, b *duckdb.Builder) ([]*sessionRow, error) {
	table := duckdb.NewTable[sessionRow](s.db, sessionsTable)
	if e := s.logger.Trace(); e.Enabled() {
		q, args, _ := b.Build()
		e.Str("query", duckdb.InterpolateQuery(q, args)).Msg("Querying sessions")
	}
	rows, err := table.Query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return rows, nil
}

func (s *DuckDBStore) sampleCounts(ctx context.Context) (map[string]int, error) {
	const q = `SELECT session_id, COUNT(*) FROM samples GROUP BY session_id`
	s.logger.Trace().Str("query", duckdb.InterpolateQuery(q, nil)).Msg("Counting samples")

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func toSampleRow(sessionID string, s timeline.Sample) *sampleRow {
	mem, _ := safe.Uint64ToInt64(s.MemoryBytes)
	swap, _ := safe.Uint64ToInt64(s.SwapBytes)
	return &sampleRow{
		SessionID:        sessionID,
		Seq:              int32(s.Seq), // #nosec G115 - bounded by session length
		Timestamp:        s.Timestamp,
		ElapsedMS:        s.Elapsed.Milliseconds(),
		MemoryBytes:      mem,
		CPUPercent:       s.CPUPercent,
		Threads:          s.Threads,
		SwapBytes:        swap,
		MemoryPressure:   s.Pressure.String(),
		Processes:        int32(s.Processes), // #nosec G115
		GPUActivePercent: nullFloat(s.GPUActivePercent),
		GPUPowerWatts:    nullFloat(s.GPUPowerWatts),
		ANEPowerWatts:    nullFloat(s.ANEPowerWatts),
	}
}

func (r *sampleRow) sample() timeline.Sample {
	return timeline.Sample{
		Seq:              int(r.Seq),
		Timestamp:        r.Timestamp,
		Elapsed:          time.Duration(r.ElapsedMS) * time.Millisecond,
		MemoryBytes:      safe.Int64ToUint64(r.MemoryBytes),
		CPUPercent:       r.CPUPercent,
		Threads:          r.Threads,
		SwapBytes:        safe.Int64ToUint64(r.SwapBytes),
		Pressure:         proctree.ParsePressure(r.MemoryPressure),
		Processes:        int(r.Processes),
		GPUActivePercent: reading(r.GPUActivePercent),
		GPUPowerWatts:    reading(r.GPUPowerWatts),
		ANEPowerWatts:    reading(r.ANEPowerWatts),
	}
}

func (r *sessionRow) meta(logger zerolog.Logger) Meta {
	var desc sysinfo.Descriptor
	if r.SystemJSON != "" {
		if err := json.Unmarshal([]byte(r.SystemJSON), &desc); err != nil {
			logger.Debug().Err(err).Str("session_id", r.ID).Msg("Stored system descriptor is not valid JSON")
		}
	}
	return Meta{
		SessionID:       r.ID,
		TargetPID:       r.TargetPID,
		TargetName:      r.TargetName,
		Reason:          r.Reason,
		Interval:        time.Duration(r.IntervalMS) * time.Millisecond,
		TelemetryStatus: r.TelemetryStatus,
		System:          desc,
		Version:         r.Version,
	}
}

func nullFloat(r telemetry.Reading) sql.NullFloat64 {
	return sql.NullFloat64{Float64: r.Value, Valid: r.Available}
}

func reading(n sql.NullFloat64) telemetry.Reading {
	if !n.Valid {
		return telemetry.Unavailable()
	}
	return telemetry.Available(n.Float64)
}
