// Package sqldb is the SQL verification log store. It runs on SQLite
// (modernc.org/sqlite) and PostgreSQL (jackc/pgx) through the dialect layer.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/dialect"
)

// Store is a SQL implementation of ports.LogStore that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.LogStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a SQLite store at dbPath. A busy timeout is added to the
// DSN so every pooled connection waits for concurrent writers.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: sqliteDSN(dbPath)})
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// NewPostgres creates a PostgreSQL store.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "pgx", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	d := s.dialect
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS verification_logs (
			id TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL UNIQUE,
			submitted_at %[1]s NOT NULL,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			browser_fingerprint TEXT NOT NULL,
			device_type TEXT,
			reported_latitude DOUBLE PRECISION,
			reported_longitude DOUBLE PRECISION,
			time_on_page DOUBLE PRECISION NOT NULL,
			idle_time DOUBLE PRECISION NOT NULL,
			mouse_metrics %[2]s,
			keyboard_metrics %[2]s,
			angular_velocity DOUBLE PRECISION,
			model_features %[2]s,
			validation_results %[2]s NOT NULL,
			is_bot %[3]s,
			confidence DOUBLE PRECISION,
			notes TEXT NOT NULL
		)`, d.TimestampType(), d.JSONType(), d.BooleanType()),
		`CREATE INDEX IF NOT EXISTS idx_verification_logs_submitted ON verification_logs(submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_logs_ip ON verification_logs(ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_logs_fingerprint ON verification_logs(browser_fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_logs_is_bot ON verification_logs(is_bot)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	// Run migrations for existing databases - add columns that may not exist
	return s.runMigrations()
}

func (s *Store) runMigrations() error {
	d := s.dialect
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"verification_logs", "scroll_metrics", "ALTER TABLE verification_logs ADD COLUMN scroll_metrics " + d.JSONType()},
		{"verification_logs", "classifier", "ALTER TABLE verification_logs ADD COLUMN classifier TEXT"},
		{"verification_logs", "ip_latitude", "ALTER TABLE verification_logs ADD COLUMN ip_latitude DOUBLE PRECISION"},
		{"verification_logs", "ip_longitude", "ALTER TABLE verification_logs ADD COLUMN ip_longitude DOUBLE PRECISION"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", m.table, m.column, err)
		}
		if !exists {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	query := s.dialect.Rebind(s.dialect.ColumnExistsQuery())
	if err := s.db.QueryRow(query, table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const logColumns = `id, submission_id, submitted_at, ip_address, user_agent, browser_fingerprint,
	device_type, reported_latitude, reported_longitude, ip_latitude, ip_longitude, time_on_page, idle_time,
	mouse_metrics, keyboard_metrics, scroll_metrics, angular_velocity, model_features,
	validation_results, is_bot, confidence, classifier, notes`

// logRow is the column layout of verification_logs.
type logRow struct {
	ID                 string          `db:"id"`
	SubmissionID       string          `db:"submission_id"`
	SubmittedAt        time.Time       `db:"submitted_at"`
	IPAddress          string          `db:"ip_address"`
	UserAgent          string          `db:"user_agent"`
	BrowserFingerprint string          `db:"browser_fingerprint"`
	DeviceType         sql.NullString  `db:"device_type"`
	ReportedLatitude   sql.NullFloat64 `db:"reported_latitude"`
	ReportedLongitude  sql.NullFloat64 `db:"reported_longitude"`
	IPLatitude         sql.NullFloat64 `db:"ip_latitude"`
	IPLongitude        sql.NullFloat64 `db:"ip_longitude"`
	TimeOnPage         float64         `db:"time_on_page"`
	IdleTime           float64         `db:"idle_time"`
	MouseMetrics       sql.NullString  `db:"mouse_metrics"`
	KeyboardMetrics    sql.NullString  `db:"keyboard_metrics"`
	ScrollMetrics      sql.NullString  `db:"scroll_metrics"`
	AngularVelocity    sql.NullFloat64 `db:"angular_velocity"`
	ModelFeatures      sql.NullString  `db:"model_features"`
	ValidationResults  string          `db:"validation_results"`
	IsBot              sql.NullBool    `db:"is_bot"`
	Confidence         sql.NullFloat64 `db:"confidence"`
	Classifier         sql.NullString  `db:"classifier"`
	Notes              string          `db:"notes"`
}

// AppendLog inserts log. A repeated SubmissionID is ignored and the stored
// id is returned.
func (s *Store) AppendLog(ctx context.Context, log *domain.VerificationLog) (domain.LogID, error) {
	if log.ID == "" {
		log.ID = domain.LogID(uuid.NewString())
	}
	row, err := toRow(log)
	if err != nil {
		return "", &domain.PersistenceError{Op: "encode", Err: err}
	}

	query := `INSERT INTO verification_logs (` + logColumns + `) VALUES (
		:id, :submission_id, :submitted_at, :ip_address, :user_agent, :browser_fingerprint,
		:device_type, :reported_latitude, :reported_longitude, :ip_latitude, :ip_longitude, :time_on_page, :idle_time,
		:mouse_metrics, :keyboard_metrics, :scroll_metrics, :angular_velocity, :model_features,
		:validation_results, :is_bot, :confidence, :classifier, :notes
	) ` + s.dialect.InsertIgnoreClause("submission_id")

	query, args, err := sqlx.Named(query, row)
	if err != nil {
		return "", &domain.PersistenceError{Op: "append", Err: err}
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return "", &domain.PersistenceError{Op: "append", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return log.ID, nil
	}

	var existing string
	err = s.db.GetContext(ctx, &existing,
		s.dialect.Rebind(`SELECT id FROM verification_logs WHERE submission_id = ?`), log.SubmissionID)
	if err != nil {
		return "", &domain.PersistenceError{Op: "append", Err: err}
	}
	return domain.LogID(existing), nil
}

// ListLogs returns a page of logs, newest first.
func (s *Store) ListLogs(ctx context.Context, opts domain.LogListOptions) ([]*domain.VerificationLog, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	where, args := filterClause(opts.Filter)
	query := s.dialect.Rebind(`SELECT ` + logColumns + ` FROM verification_logs` + where +
		` ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, opts.Offset)

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}

	logs := make([]*domain.VerificationLog, 0, len(rows))
	for i := range rows {
		l, err := rows[i].toDomain()
		if err != nil {
			return nil, &domain.PersistenceError{Op: "decode", Err: err}
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// CountLogs returns the number of logs matching filter.
func (s *Store) CountLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	if err := s.db.GetContext(ctx, &n, s.dialect.Rebind(`SELECT COUNT(*) FROM verification_logs`+where), args...); err != nil {
		return 0, &domain.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// GetLog returns one log by id.
func (s *Store) GetLog(ctx context.Context, id domain.LogID) (*domain.VerificationLog, error) {
	var row logRow
	err := s.db.GetContext(ctx, &row,
		s.dialect.Rebind(`SELECT `+logColumns+` FROM verification_logs WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLogNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get", Err: err}
	}
	l, err := row.toDomain()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "decode", Err: err}
	}
	return l, nil
}

// FindBySubmission returns the log recorded for a submission id.
func (s *Store) FindBySubmission(ctx context.Context, submissionID string) (*domain.VerificationLog, error) {
	var row logRow
	err := s.db.GetContext(ctx, &row,
		s.dialect.Rebind(`SELECT `+logColumns+` FROM verification_logs WHERE submission_id = ?`), submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLogNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "find", Err: err}
	}
	l, err := row.toDomain()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "decode", Err: err}
	}
	return l, nil
}

// Stats returns verdict totals.
func (s *Store) Stats(ctx context.Context) (*domain.LogStats, error) {
	var stats struct {
		Total   int `db:"total_count"`
		Bot     int `db:"bot_count"`
		Human   int `db:"human_count"`
		Unknown int `db:"unknown_count"`
	}
	query := s.dialect.Rebind(`SELECT
		COUNT(*) AS total_count,
		COALESCE(SUM(CASE WHEN is_bot = ? THEN 1 ELSE 0 END), 0) AS bot_count,
		COALESCE(SUM(CASE WHEN is_bot = ? THEN 1 ELSE 0 END), 0) AS human_count,
		COALESCE(SUM(CASE WHEN is_bot IS NULL THEN 1 ELSE 0 END), 0) AS unknown_count
		FROM verification_logs`)
	if err := s.db.GetContext(ctx, &stats, query, true, false); err != nil {
		return nil, &domain.PersistenceError{Op: "stats", Err: err}
	}
	return &domain.LogStats{Total: stats.Total, Bot: stats.Bot, Human: stats.Human, Unknown: stats.Unknown}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func filterClause(f domain.LogFilter) (string, []any) {
	var conds []string
	var args []any
	switch f.Verdict {
	case domain.VerdictBot:
		conds = append(conds, "is_bot = ?")
		args = append(args, true)
	case domain.VerdictHuman:
		conds = append(conds, "is_bot = ?")
		args = append(args, false)
	case domain.VerdictUnknown:
		conds = append(conds, "is_bot IS NULL")
	}
	if f.IPAddress != "" {
		conds = append(conds, "ip_address = ?")
		args = append(args, f.IPAddress)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func toRow(l *domain.VerificationLog) (*logRow, error) {
	validation, err := json.Marshal(l.ValidationResults)
	if err != nil {
		return nil, err
	}
	row := &logRow{
		ID:                 string(l.ID),
		SubmissionID:       l.SubmissionID,
		SubmittedAt:        l.SubmittedAt.UTC(),
		IPAddress:          l.IPAddress,
		UserAgent:          l.UserAgent,
		BrowserFingerprint: l.BrowserFingerprint,
		DeviceType:         nullString(string(l.DeviceClass)),
		ReportedLatitude:   nullFloat(l.ReportedLatitude),
		ReportedLongitude:  nullFloat(l.ReportedLongitude),
		IPLatitude:         nullFloat(l.IPLatitude),
		IPLongitude:        nullFloat(l.IPLongitude),
		TimeOnPage:         l.TimeOnPage,
		IdleTime:           l.IdleTime,
		AngularVelocity:    nullFloat(l.AngularVelocity),
		ValidationResults:  string(validation),
		Confidence:         nullFloat(l.Confidence),
		Classifier:         nullString(l.Classifier),
		Notes:              l.Notes,
	}
	if v, ok := l.IsBot.Get(); ok {
		row.IsBot = sql.NullBool{Bool: v, Valid: true}
	}
	if row.MouseMetrics, err = jsonColumn(l.MouseMetrics); err != nil {
		return nil, err
	}
	if row.KeyboardMetrics, err = jsonColumn(l.KeyboardMetrics); err != nil {
		return nil, err
	}
	if row.ScrollMetrics, err = jsonColumn(l.ScrollMetrics); err != nil {
		return nil, err
	}
	if len(l.ModelFeatures) > 0 {
		row.ModelFeatures = nullString(string(l.ModelFeatures))
	}
	return row, nil
}

func (r *logRow) toDomain() (*domain.VerificationLog, error) {
	l := &domain.VerificationLog{
		ID:                 domain.LogID(r.ID),
		SubmissionID:       r.SubmissionID,
		SubmittedAt:        r.SubmittedAt.UTC(),
		IPAddress:          r.IPAddress,
		UserAgent:          r.UserAgent,
		BrowserFingerprint: r.BrowserFingerprint,
		DeviceClass:        domain.DeviceClass(r.DeviceType.String),
		ReportedLatitude:   optFloat(r.ReportedLatitude),
		ReportedLongitude:  optFloat(r.ReportedLongitude),
		IPLatitude:         optFloat(r.IPLatitude),
		IPLongitude:        optFloat(r.IPLongitude),
		TimeOnPage:         r.TimeOnPage,
		IdleTime:           r.IdleTime,
		AngularVelocity:    optFloat(r.AngularVelocity),
		Confidence:         optFloat(r.Confidence),
		Classifier:         r.Classifier.String,
		Notes:              r.Notes,
	}
	if r.IsBot.Valid {
		l.IsBot = domain.Some(r.IsBot.Bool)
	}
	if err := json.Unmarshal([]byte(r.ValidationResults), &l.ValidationResults); err != nil {
		return nil, fmt.Errorf("validation_results: %w", err)
	}
	if r.MouseMetrics.Valid {
		l.MouseMetrics = &domain.MouseMetrics{}
		if err := json.Unmarshal([]byte(r.MouseMetrics.String), l.MouseMetrics); err != nil {
			return nil, fmt.Errorf("mouse_metrics: %w", err)
		}
	}
	if r.KeyboardMetrics.Valid {
		l.KeyboardMetrics = &domain.KeyboardMetrics{}
		if err := json.Unmarshal([]byte(r.KeyboardMetrics.String), l.KeyboardMetrics); err != nil {
			return nil, fmt.Errorf("keyboard_metrics: %w", err)
		}
	}
	if r.ScrollMetrics.Valid {
		l.ScrollMetrics = &domain.ScrollMetrics{}
		if err := json.Unmarshal([]byte(r.ScrollMetrics.String), l.ScrollMetrics); err != nil {
			return nil, fmt.Errorf("scroll_metrics: %w", err)
		}
	}
	if r.ModelFeatures.Valid {
		l.ModelFeatures = []byte(r.ModelFeatures.String)
	}
	return l, nil
}

func jsonColumn(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *domain.MouseMetrics:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *domain.KeyboardMetrics:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *domain.ScrollMetrics:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(o domain.Opt[float64]) sql.NullFloat64 {
	v, ok := o.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func optFloat(n sql.NullFloat64) domain.Opt[float64] {
	if !n.Valid {
		return domain.None[float64]()
	}
	return domain.Some(n.Float64)
}
