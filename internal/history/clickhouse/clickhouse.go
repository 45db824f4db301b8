package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/procstream/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

// EnsureTable creates the MergeTree table the sink inserts into.
func (s *Sink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			type String,
			occurred_at DateTime64(6),
			operation_id String,
			command String,
			args Array(String),
			work_dir String,
			pid Int32,
			state String,
			success Bool,
			exit_code Int32,
			error Nullable(String),
			started_at DateTime64(6),
			finished_at DateTime64(6),
			lines UInt32
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, operation_id)
	`)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, operation_id, command, args, work_dir, pid, state, success, exit_code, error, started_at, finished_at, lines) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	rec := e.Record
	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}
	args := rec.Args
	if args == nil {
		args = []string{}
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		rec.OperationID,
		rec.Command,
		args,
		rec.WorkDir,
		int32(rec.PID),
		rec.State,
		rec.Success,
		int32(rec.ExitCode),
		errText,
		rec.StartedAt,
		rec.FinishedAt,
		uint32(rec.Lines),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
