package publish

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/shanehull/bullionscraper/internal/types"
)

// Row is one present price as stored in ClickHouse.
type Row struct {
	TakenAt time.Time
	Source  string
	Metal   string
	Grade   string
	Side    string
	Price   float64
}

// ClickHouseSink appends one row per present price.
type ClickHouseSink struct {
	db    *sql.DB
	table string
}

func NewClickHouseSink(ctx context.Context, dsn, table string) (*ClickHouseSink, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	sink := &ClickHouseSink{db: db, table: table}
	if _, err := db.ExecContext(ctx, sink.schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return sink, nil
}

func (c *ClickHouseSink) Name() string { return "clickhouse" }
func (c *ClickHouseSink) Close() error { return c.db.Close() }

func (c *ClickHouseSink) schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	taken_at DateTime64(3, 'UTC'),
	source LowCardinality(String),
	metal LowCardinality(String),
	grade LowCardinality(String),
	side LowCardinality(String),
	price Float64
) ENGINE = MergeTree
ORDER BY (metal, grade, side, taken_at)`, c.table)
}

func (c *ClickHouseSink) Write(ctx context.Context, s types.Snapshot) error {
	rows := Rows(s)
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (taken_at, source, metal, grade, side, price)", c.table))
	if err != nil {
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.TakenAt, r.Source, r.Metal, r.Grade, r.Side, r.Price); err != nil {
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clickhouse commit: %w", err)
	}
	return nil
}

// Rows flattens s into one row per present price, in snapshot order.
func Rows(s types.Snapshot) []Row {
	var rows []Row
	for _, k := range s.FieldKeys() {
		v, ok := s.Price(k).Get()
		if !ok {
			continue
		}
		rows = append(rows, Row{
			TakenAt: s.TakenAt(),
			Source:  s.Source(),
			Metal:   string(k.Instrument.Metal),
			Grade:   string(k.Instrument.Grade),
			Side:    string(k.Side),
			Price:   v,
		})
	}
	return rows
}
