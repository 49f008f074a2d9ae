package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSink archives alerts into a Postgres table
type PostgresSink struct {
	db    *sqlx.DB
	table string
}

type alertRow struct {
	ID              string    `db:"id"`
	MonitorID       string    `db:"monitor_id"`
	Label           string    `db:"label"`
	RunNo           int       `db:"run_no"`
	Risk            string    `db:"risk"`
	HighAccuracyPII int       `db:"high_accuracy_pii"`
	TotalPII        int       `db:"total_pii"`
	Findings        string    `db:"findings"`
	CreatedAt       time.Time `db:"created_at"`
}

// NewPostgresSink connects and makes sure the alert table exists
func NewPostgresSink(ctx context.Context, databaseURL, table string, maxOpenConns int) (*PostgresSink, error) {
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("invalid alert table name: %q", table)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", maskDatabaseURL(databaseURL), err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	s := &PostgresSink{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                TEXT PRIMARY KEY,
			monitor_id        TEXT NOT NULL,
			label             TEXT NOT NULL DEFAULT '',
			run_no            INTEGER NOT NULL,
			risk              TEXT NOT NULL,
			high_accuracy_pii INTEGER NOT NULL,
			total_pii         INTEGER NOT NULL,
			findings          JSONB NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create alert table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Deliver(ctx context.Context, alert *Alert) error {
	row, err := toRow(alert)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, monitor_id, label, run_no, risk, high_accuracy_pii, total_pii, findings, created_at)
		VALUES (:id, :monitor_id, :label, :run_no, :risk, :high_accuracy_pii, :total_pii, :findings, :created_at)
		ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close(context.Context) error {
	return s.db.Close()
}

func toRow(a *Alert) (alertRow, error) {
	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return alertRow{}, fmt.Errorf("encode findings: %w", err)
	}
	return alertRow{
		ID:              a.ID,
		MonitorID:       a.MonitorID,
		Label:           a.Label,
		RunNo:           a.RunNo,
		Risk:            a.Risk,
		HighAccuracyPII: a.HighAccuracyPII,
		TotalPII:        a.TotalPII,
		Findings:        string(findings),
		CreatedAt:       a.Timestamp,
	}, nil
}

// maskDatabaseURL hides the password of a connection URL
func maskDatabaseURL(url string) string {
	start := 0
	if i := strings.Index(url, "://"); i >= 0 {
		start = i + 3
	}
	at := strings.LastIndex(url, "@")
	if at < start {
		return url
	}
	colon := strings.Index(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}
