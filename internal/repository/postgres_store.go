package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
)

// PostgresStore runs units of work as PostgreSQL transactions.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InTx runs fn inside one transaction with every repository bound to it.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newPgTx(tx))
	})
}

// pgTx composes the table repositories over a single pgx.Tx.
type pgTx struct {
	*EmployeeRepository
	*ReplacementRepository
	*RouteTemplateRepository
	*DocumentRepository
	*ApprovalRepository
	*StatusRepository
	*ActionLogRepository
}

func newPgTx(q database.Querier) *pgTx {
	return &pgTx{
		EmployeeRepository:      NewEmployeeRepository(q),
		ReplacementRepository:   NewReplacementRepository(q),
		RouteTemplateRepository: NewRouteTemplateRepository(q),
		DocumentRepository:      NewDocumentRepository(q),
		ApprovalRepository:      NewApprovalRepository(q),
		StatusRepository:        NewStatusRepository(q),
		ActionLogRepository:     NewActionLogRepository(q),
	}
}

var _ Tx = (*pgTx)(nil)
