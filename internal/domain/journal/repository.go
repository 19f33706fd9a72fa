package journal

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for journal persistence
type Repository interface {
	Insert(ctx context.Context, record *Record) error
	InsertBatch(ctx context.Context, records []*Record) error
	GetByRecordID(ctx context.Context, recordID uuid.UUID) (*Record, error)
	ListByMachine(ctx context.Context, machineID string, limit int) ([]*Record, error)
	ListFailures(ctx context.Context, limit int) ([]*Record, error)
}
