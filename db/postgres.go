// Package db implements the persistence gateway: a thin, schema-driven
// query builder over a relational store. It is oblivious to game
// semantics — all orchestration (what to save, when) lives in the entity
// registry and the synchronizer; this package only knows how to turn a
// table name plus a map of column values into SQL.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tileworld.dev/server/common"
)

// Gateway wraps a connection pool and exposes the handful of primitives the
// entity registry and synchronizer need: Select, Insert, Update, Delete,
// and a transaction scope.
type Gateway struct {
	conn *gorm.DB
	log  *common.ContextLogger
}

// Open establishes the connection pool against dsn, configured the way a
// production service is expected to be: bounded idle/open connections and a
// bounded connection lifetime.
func Open(dsn string, log *common.ContextLogger) (*Gateway, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogAdapter{log: log},
	})
	if err != nil {
		return nil, fmt.Errorf("persistence gateway: connect: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("persistence gateway: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Gateway{conn: conn, log: log}, nil
}

// Row is one result row keyed by column name.
type Row map[string]any

// SelectOptions narrows a Select call.
type SelectOptions struct {
	OrderBy string
	Limit   int
}

// Select runs a parametrized WHERE-equality query against table and
// returns matching rows.
func (g *Gateway) Select(ctx context.Context, table string, where map[string]any, opts SelectOptions) ([]Row, error) {
	tx := g.conn.WithContext(ctx).Table(table)
	for col, val := range where {
		tx = tx.Where(fmt.Sprintf("%s = ?", col), val)
	}
	if opts.OrderBy != "" {
		tx = tx.Order(opts.OrderBy)
	}
	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}

	var rows []Row
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persistence gateway: select %s: %w", table, err)
	}
	return rows, nil
}

// SelectRange runs the rectangular positional query a subzone load needs:
// WHERE location = ? AND x BETWEEN [start.x,end.x) AND y BETWEEN [start.y,end.y).
func (g *Gateway) SelectRange(ctx context.Context, table string, location int64, startX, startY, endX, endY int) ([]Row, error) {
	var rows []Row
	err := g.conn.WithContext(ctx).Table(table).
		Where("location = ? AND x >= ? AND x < ? AND y >= ? AND y < ?", location, startX, endX, startY, endY).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("persistence gateway: select range %s: %w", table, err)
	}
	return rows, nil
}

// Insert writes values into table and returns the generated primary key
// (INSERT ... RETURNING id).
func (g *Gateway) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	result := map[string]any{}
	for k, v := range values {
		result[k] = v
	}
	tx := g.conn.WithContext(ctx).Table(table)
	if err := tx.Create(&result).Error; err != nil {
		return 0, fmt.Errorf("persistence gateway: insert %s: %w", table, err)
	}
	id, err := extractID(result)
	if err != nil {
		return 0, fmt.Errorf("persistence gateway: insert %s: %w", table, err)
	}
	return id, nil
}

// Update applies a column→value set to the row identified by id, built
// from exactly the dirty-field set the caller recorded.
func (g *Gateway) Update(ctx context.Context, table string, id int64, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	err := g.conn.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values).Error
	if err != nil {
		return fmt.Errorf("persistence gateway: update %s#%d: %w", table, id, err)
	}
	return nil
}

// Delete removes the row identified by id from table.
func (g *Gateway) Delete(ctx context.Context, table string, id int64) error {
	err := g.conn.WithContext(ctx).Table(table).Where("id = ?", id).Delete(nil).Error
	if err != nil {
		return fmt.Errorf("persistence gateway: delete %s#%d: %w", table, id, err)
	}
	return nil
}

// Transaction runs fn against a Gateway bound to a single transaction; a
// non-nil return rolls back.
func (g *Gateway) Transaction(ctx context.Context, fn func(tx *Gateway) error) error {
	return g.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gateway{conn: tx, log: g.log})
	})
}

// AutoMigrate creates or updates the given table definitions (GORM model
// structs supplied by the application layer / entity classes).
func (g *Gateway) AutoMigrate(models ...any) error {
	if err := g.conn.AutoMigrate(models...); err != nil {
		return fmt.Errorf("persistence gateway: migrate: %w", err)
	}
	return nil
}

func extractID(row map[string]any) (int64, error) {
	raw, ok := row["id"]
	if !ok {
		return 0, fmt.Errorf("no id column returned")
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected id type %T", raw)
	}
}

// gormLogAdapter routes GORM's query logging through the same structured
// logger the rest of the service uses, at Warn/Error only — per the error
// taxonomy's Storage category, a failing query is logged with its SQL and
// the enclosing task is aborted without stopping the scheduler.
type gormLogAdapter struct {
	log *common.ContextLogger
}

func (a gormLogAdapter) LogMode(logger.LogLevel) logger.Interface { return a }

func (a gormLogAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	a.log.Infof(msg, args...)
}

func (a gormLogAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	a.log.Warnf(msg, args...)
}

func (a gormLogAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	a.log.Errorf(msg, args...)
}

func (a gormLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	fields := map[string]interface{}{
		"duration_ms": time.Since(begin).Milliseconds(),
		"rows":        rows,
	}
	if err != nil {
		a.log.WithFields(fields).WithError(err).WithField("sql", sql).Error("query failed")
		return
	}
	if time.Since(begin) > 200*time.Millisecond {
		a.log.WithFields(fields).WithField("sql", sql).Warn("slow query")
	}
}
