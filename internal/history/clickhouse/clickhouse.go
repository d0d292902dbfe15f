package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/meterdock/meterdock/internal/history"
)

// Sink sends execution events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// parseOptions accepts either a full clickhouse:// DSN or a bare host:port
// (connecting as default/default in that case).
func parseOptions(dsn string) (*clickhouse.Options, error) {
	if strings.Contains(dsn, "://") {
		opts, err := clickhouse.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse ClickHouse DSN: %w", err)
		}
		return opts, nil
	}
	return &clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	}, nil
}

func New(dsn, table string) (*Sink, error) {
	opts, err := parseOptions(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if table == "" {
		table = "execution_history"
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, execution_id, plan_id, state, exit_code, error_message, report_path) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	exitCode := int32(-1)
	if e.Record.ExitCode != nil {
		exitCode = int32(*e.Record.ExitCode)
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.Record.ID,
		e.Record.PlanID,
		string(e.Record.State),
		exitCode,
		e.Record.ErrorMessage,
		e.Record.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
