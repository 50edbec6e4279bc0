package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/supplywise/auth-gateway/models"
	"github.com/supplywise/auth-gateway/repositories"
	"go.uber.org/zap"
)

// AccessDecisionRepository implements the repositories.AccessDecisionRepository interface
type AccessDecisionRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewAccessDecisionRepository creates a new access decision repository
func NewAccessDecisionRepository(db *DB, logger *zap.Logger) repositories.AccessDecisionRepository {
	return &AccessDecisionRepository{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Insert inserts a new access decision
func (r *AccessDecisionRepository) Insert(ctx context.Context, d *models.AccessDecision) error {
	query := `
		INSERT INTO access_decisions (
			id, request_id, subject, username, roles, method, path,
			outcome, rule, reason, remote_addr, user_agent, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		d.ID,
		d.RequestID,
		d.Subject,
		d.Username,
		pq.Array(d.Roles),
		d.Method,
		d.Path,
		d.Outcome,
		d.Rule,
		d.Reason,
		d.RemoteAddr,
		d.UserAgent,
		d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access decision: %w", err)
	}

	r.logger.Debug("access decision inserted",
		zap.String("id", d.ID.String()),
		zap.String("outcome", string(d.Outcome)))
	return nil
}

// InsertBatch inserts decisions in a single transaction
func (r *AccessDecisionRepository) InsertBatch(ctx context.Context, decisions []*models.AccessDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	return r.tm.InTransaction(ctx, func(txCtx context.Context) error {
		for _, d := range decisions {
			if err := r.Insert(txCtx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBySubject returns the most recent decisions for a subject
func (r *AccessDecisionRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AccessDecision, error) {
	query := `
		SELECT id, request_id, subject, username, roles, method, path,
		       outcome, rule, reason, remote_addr, user_agent, timestamp
		FROM access_decisions
		WHERE subject = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list access decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.AccessDecision
	for rows.Next() {
		d := &models.AccessDecision{}
		if err := rows.Scan(
			&d.ID,
			&d.RequestID,
			&d.Subject,
			&d.Username,
			pq.Array(&d.Roles),
			&d.Method,
			&d.Path,
			&d.Outcome,
			&d.Rule,
			&d.Reason,
			&d.RemoteAddr,
			&d.UserAgent,
			&d.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access decision: %w", err)
		}
		decisions = append(decisions, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access decisions: %w", err)
	}

	return decisions, nil
}
