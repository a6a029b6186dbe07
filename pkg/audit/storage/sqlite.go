package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bastion-hq/aegis/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite sink.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections. Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 5
	MaxIdleConns int

	// WALMode enables write-ahead logging. Default: true
	WALMode bool

	// BusyTimeout is how long to wait on a locked database. Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage is an audit sink backed by SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if s.config.BusyTimeout > 0 {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
			return audit.NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Write inserts a batch in one transaction. Ids already present are
// skipped.
func (s *SQLiteStorage) Write(ctx context.Context, events []*audit.Event, opts audit.WriteOptions) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return audit.NewStorageError("sqlite", "prepare", err)
	}
	defer stmt.Close()

	recordedAt := s.now().UnixNano()
	for _, e := range events {
		flags, err := json.Marshal(nonNil(e.ComplianceFlags))
		if err != nil {
			return audit.NewStorageError("sqlite", "encode", err)
		}
		compliance, err := json.Marshal(nonNil(e.Compliance))
		if err != nil {
			return audit.NewStorageError("sqlite", "encode", err)
		}
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return audit.NewStorageError("sqlite", "encode", err)
		}

		var expires any
		if t := expiresAt(e, opts); !t.IsZero() {
			expires = t.UnixNano()
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Timestamp.UnixNano(), string(e.Type), e.Actor, e.Action,
			e.Resource, e.Status, e.IPAddress, e.UserAgent, string(e.RiskLevel),
			string(flags), string(compliance), string(metadata),
			e.EncryptedDetails, e.EncryptedSecurityContext,
			recordedAt, expires,
		); err != nil {
			return audit.NewStorageError("sqlite", "write", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return audit.NewStorageError("sqlite", "commit", err)
	}
	s.logger.Debug("audit batch written", "count", len(events), "retention_days", opts.RetentionDays)
	return nil
}

// Query returns matching, unexpired events.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	where, args := s.buildWhereClause(q)

	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	sqlQuery := fmt.Sprintf("SELECT %s FROM audit_events WHERE %s ORDER BY timestamp %s, id ASC", selectColumns, where, order)
	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	return events, nil
}

// DeleteExpired implements audit.Pruner.
func (s *SQLiteStorage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE expires_at IS NOT NULL AND expires_at <= ?", now.UnixNano())
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete_expired", err)
	}
	return n, nil
}

// Close releases the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

func (s *SQLiteStorage) buildWhereClause(q *audit.Query) (string, []any) {
	conditions := []string{
		"timestamp >= ?",
		"timestamp <= ?",
		"(expires_at IS NULL OR expires_at > ?)",
	}
	args := []any{q.TimeRange.Start.UnixNano(), q.TimeRange.End.UnixNano(), s.now().UnixNano()}

	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}

	types := make([]string, len(q.EventTypes))
	for i, t := range q.EventTypes {
		types[i] = string(t)
	}
	risks := make([]string, len(q.RiskLevels))
	for i, r := range q.RiskLevels {
		risks[i] = string(r)
	}
	addIn("type", types)
	addIn("actor", q.Actors)
	addIn("resource", q.Resources)
	addIn("risk_level", risks)

	if len(q.ComplianceFlags) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(audit_events.compliance_flags) WHERE json_each.value IN (%s))",
			placeholders(len(q.ComplianceFlags))))
		for _, f := range q.ComplianceFlags {
			args = append(args, f)
		}
	}

	return strings.Join(conditions, " AND "), args
}

func scanEvent(rows *sql.Rows) (*audit.Event, error) {
	var (
		e                              audit.Event
		ts                             int64
		eventType, risk                string
		resource, status, ip, ua       sql.NullString
		flags, compliance, metadata    string
		encDetails, encSecurityContext []byte
	)
	if err := rows.Scan(
		&e.ID, &ts, &eventType, &e.Actor, &e.Action, &resource, &status, &ip, &ua, &risk,
		&flags, &compliance, &metadata, &encDetails, &encSecurityContext,
	); err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, ts).UTC()
	e.Type = audit.EventType(eventType)
	e.RiskLevel = audit.RiskLevel(risk)
	e.Resource = resource.String
	e.Status = status.String
	e.IPAddress = ip.String
	e.UserAgent = ua.String
	e.EncryptedDetails = encDetails
	e.EncryptedSecurityContext = encSecurityContext

	if err := errors.Join(
		json.Unmarshal([]byte(flags), &e.ComplianceFlags),
		json.Unmarshal([]byte(compliance), &e.Compliance),
		json.Unmarshal([]byte(metadata), &e.Metadata),
	); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
	}
	if len(e.ComplianceFlags) == 0 {
		e.ComplianceFlags = nil
	}
	if len(e.Compliance) == 0 {
		e.Compliance = nil
	}
	return &e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
