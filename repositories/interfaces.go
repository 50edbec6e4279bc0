package repositories

import (
	"context"

	"github.com/supplywise/auth-gateway/models"
)

// TransactionManager groups repository writes into one transaction
type TransactionManager interface {
	// InTransaction commits when fn succeeds and rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccessDecisionRepository stores the authorization audit trail
type AccessDecisionRepository interface {
	// Insert inserts a single decision
	Insert(ctx context.Context, decision *models.AccessDecision) error

	// InsertBatch inserts decisions in one transaction
	InsertBatch(ctx context.Context, decisions []*models.AccessDecision) error

	// ListBySubject returns the most recent decisions for a token subject
	ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AccessDecision, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	AccessDecisions AccessDecisionRepository
}
