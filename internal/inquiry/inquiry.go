// Package inquiry records completed lead-capture conversations for the
// admissions team.
package inquiry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/metrics"
)

// Inquiry is one captured lead.
type Inquiry struct {
	UserID     string    `json:"user_id"`
	ParentType string    `json:"parent_type"`
	SchoolType string    `json:"school_type"`
	Name       string    `json:"name"`
	Mobile     string    `json:"mobile"`
	CreatedAt  time.Time `json:"created_at"`
}

// Emitter receives finished inquiries. Emission happens exactly once per
// completed conversation.
type Emitter interface {
	Emit(ctx context.Context, inq Inquiry) error
}

type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresEmitter inserts inquiries into an inquiries table.
type PostgresEmitter struct {
	pool   pgxExecutor
	logger *zap.Logger
}

// NewPostgresEmitter builds an emitter on an existing pool.
func NewPostgresEmitter(pool pgxExecutor, logger *zap.Logger) *PostgresEmitter {
	return &PostgresEmitter{pool: pool, logger: logger.Named("inquiry")}
}

const insertInquiryQuery = `
INSERT INTO inquiries (user_id, parent_type, school_type, name, mobile, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Emit persists one inquiry.
func (e *PostgresEmitter) Emit(ctx context.Context, inq Inquiry) error {
	if inq.CreatedAt.IsZero() {
		inq.CreatedAt = time.Now().UTC()
	}
	_, err := e.pool.Exec(ctx, insertInquiryQuery,
		inq.UserID, inq.ParentType, inq.SchoolType, inq.Name, inq.Mobile, inq.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inquiry: %w", err)
	}
	metrics.ObserveInquiry()
	e.logger.Info("inquiry recorded", zap.String("user_id", inq.UserID))
	return nil
}

// LogEmitter writes inquiries to the log only, for deployments without a
// database.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter builds a log-only emitter.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.Named("inquiry")}
}

// Emit logs one inquiry.
func (e *LogEmitter) Emit(_ context.Context, inq Inquiry) error {
	metrics.ObserveInquiry()
	e.logger.Info("inquiry received",
		zap.String("user_id", inq.UserID),
		zap.String("parent_type", inq.ParentType),
		zap.String("school_type", inq.SchoolType),
		zap.String("name", inq.Name),
		zap.String("mobile", inq.Mobile),
	)
	return nil
}
