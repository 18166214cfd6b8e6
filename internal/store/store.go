package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/user/pll_qa_go/internal/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	label       TEXT,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verdicts (
	verdict_id     TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	scenario       TEXT NOT NULL,
	pass           INTEGER NOT NULL,
	samp_rate      REAL NOT NULL,
	n_bits         INTEGER NOT NULL,
	out_locked     INTEGER,
	out_settle_ms  REAL,
	pe_locked      INTEGER,
	pe_settle_ms   REAL,
	freq_locked    INTEGER,
	freq_settle_ms REAL,
	min_step_rad   REAL,
	slope_rad      REAL,
	cnr_src_db     REAL,
	cnr_out_db     REAL,
	failures_json  TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS verdicts_scenario ON verdicts(scenario, created_at);
`

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store keeps the verdict history of every qualification run in SQLite.
type Store struct {
	db *sql.DB
}

// RunRecord is one invocation of the verifier.
type RunRecord struct {
	RunID     string
	Label     string
	StartedAt time.Time
}

// VerdictRecord is the stored summary of one scenario verdict. Settling
// times are +Inf for channels that never settled; metrics that were not
// computed are NaN.
type VerdictRecord struct {
	VerdictID    string
	RunID        string
	Scenario     string
	Pass         bool
	SampleRate   float64
	N            int
	OutSettleMs  float64
	PESettleMs   float64
	FreqSettleMs float64
	MinStepRad   float64
	SlopeRad     float64
	CNRSourceDB  float64
	CNROutDB     float64
	Failures     []string
	CreatedAt    time.Time
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers a run. An empty runID gets a fresh UUID.
func (s *Store) StartRun(runID, label string) (RunRecord, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	rec := RunRecord{RunID: runID, Label: label, StartedAt: time.Now().UTC()}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, label, started_at) VALUES (?, ?, ?)`,
		rec.RunID, rec.Label, rec.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// finite maps non-finite values to NULL; SQLite has no NaN.
func finite(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// settleColumns encodes a settling time as (locked, ms). Both are NULL when
// the channel was not captured.
func settleColumns(present bool, ms float64) (sql.NullBool, sql.NullFloat64) {
	if !present {
		return sql.NullBool{}, sql.NullFloat64{}
	}
	locked := !math.IsInf(ms, 1)
	return sql.NullBool{Bool: locked, Valid: true}, finite(ms)
}

func decodeSettle(locked sql.NullBool, ms sql.NullFloat64) float64 {
	switch {
	case !locked.Valid:
		return math.NaN()
	case !locked.Bool:
		return math.Inf(1)
	}
	return ms.Float64
}

func valueOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Summarize flattens a verdict into the stored record shape.
func Summarize(runID string, v *analysis.Verdict) VerdictRecord {
	fs := v.Params.SampleRate
	rec := VerdictRecord{
		RunID:        runID,
		Scenario:     v.Scenario,
		Pass:         v.Pass(),
		SampleRate:   fs,
		N:            v.Params.N,
		OutSettleMs:  math.NaN(),
		PESettleMs:   math.NaN(),
		FreqSettleMs: math.NaN(),
		MinStepRad:   math.NaN(),
		SlopeRad:     math.NaN(),
		CNRSourceDB:  math.NaN(),
		CNROutDB:     math.NaN(),
		Failures:     append([]string(nil), v.Failures...),
	}
	if v.Out != nil {
		rec.OutSettleMs = v.Out.TimeMs(fs)
	}
	if v.PhaseError != nil {
		rec.PESettleMs = v.PhaseError.TimeMs(fs)
	}
	if v.Freq != nil {
		rec.FreqSettleMs = v.Freq.TimeMs(fs)
	}
	if a := v.Accumulator; a != nil {
		rec.MinStepRad = a.MinimumStepRad
		rec.SlopeRad = a.MeanSlopeRad
	}
	if v.SpectrumSource != nil {
		rec.CNRSourceDB = v.SpectrumSource.CNR
	}
	if v.SpectrumOut != nil {
		rec.CNROutDB = v.SpectrumOut.CNR
	}
	return rec
}

// Record stores one verdict under an existing run.
func (s *Store) Record(runID string, v *analysis.Verdict) (VerdictRecord, error) {
	rec := Summarize(runID, v)
	rec.VerdictID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	failures, err := json.Marshal(rec.Failures)
	if err != nil {
		return VerdictRecord{}, fmt.Errorf("marshal failures: %w", err)
	}

	outLocked, outMs := settleColumns(v.Out != nil, rec.OutSettleMs)
	peLocked, peMs := settleColumns(v.PhaseError != nil, rec.PESettleMs)
	freqLocked, freqMs := settleColumns(v.Freq != nil, rec.FreqSettleMs)

	_, err = s.db.Exec(
		`INSERT INTO verdicts (verdict_id, run_id, scenario, pass, samp_rate, n_bits,
			out_locked, out_settle_ms, pe_locked, pe_settle_ms, freq_locked, freq_settle_ms,
			min_step_rad, slope_rad, cnr_src_db, cnr_out_db, failures_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VerdictID, rec.RunID, rec.Scenario, rec.Pass, rec.SampleRate, rec.N,
		outLocked, outMs, peLocked, peMs, freqLocked, freqMs,
		finite(rec.MinStepRad), finite(rec.SlopeRad),
		finite(rec.CNRSourceDB), finite(rec.CNROutDB),
		string(failures), rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return VerdictRecord{}, fmt.Errorf("insert verdict: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, COALESCE(label, ''), started_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started string
		if err := rows.Scan(&r.RunID, &r.Label, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunVerdicts returns every verdict recorded for a run in insertion order.
func (s *Store) RunVerdicts(runID string) ([]VerdictRecord, error) {
	return s.queryVerdicts(`WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
}

// History returns the latest verdicts for one scenario, newest first.
func (s *Store) History(scenario string, limit int) ([]VerdictRecord, error) {
	return s.queryVerdicts(`WHERE scenario = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, scenario, limit)
}

func (s *Store) queryVerdicts(where string, args ...any) ([]VerdictRecord, error) {
	rows, err := s.db.Query(
		`SELECT verdict_id, run_id, scenario, pass, samp_rate, n_bits,
			out_locked, out_settle_ms, pe_locked, pe_settle_ms, freq_locked, freq_settle_ms,
			min_step_rad, slope_rad, cnr_src_db, cnr_out_db, failures_json, created_at
		 FROM verdicts `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []VerdictRecord
	for rows.Next() {
		var (
			r                   VerdictRecord
			outL, peL, freqL    sql.NullBool
			outMs, peMs, freqMs sql.NullFloat64
			step, slope         sql.NullFloat64
			cnrSrc, cnrOut      sql.NullFloat64
			failures, created   string
		)
		if err := rows.Scan(&r.VerdictID, &r.RunID, &r.Scenario, &r.Pass, &r.SampleRate, &r.N,
			&outL, &outMs, &peL, &peMs, &freqL, &freqMs, &step, &slope, &cnrSrc, &cnrOut, &failures, &created); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		r.OutSettleMs = decodeSettle(outL, outMs)
		r.PESettleMs = decodeSettle(peL, peMs)
		r.FreqSettleMs = decodeSettle(freqL, freqMs)
		r.MinStepRad = valueOrNaN(step)
		r.SlopeRad = valueOrNaN(slope)
		r.CNRSourceDB = valueOrNaN(cnrSrc)
		r.CNROutDB = valueOrNaN(cnrOut)
		if err := json.Unmarshal([]byte(failures), &r.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
