package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/state-hub/state-hub/internal/domain/journal"
)

// JournalRepository implements journal.Repository.
type JournalRepository struct {
	pool *pgxpool.Pool
}

func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

const journalColumns = `record_id, machine_id, event_name, correlation_id, lane, outcome, error, configuration, deferred_count, duration_ms, created_at`

func (r *JournalRepository) Insert(ctx context.Context, rec *journal.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_journal
		(`+journalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, rec.RecordID, rec.MachineID, rec.EventName, rec.CorrelationID, rec.Lane, rec.Outcome, rec.Error, rec.Configuration, rec.DeferredCount, rec.DurationMs, rec.CreatedAt)
	return err
}

func (r *JournalRepository) InsertBatch(ctx context.Context, records []*journal.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO event_journal
			(`+journalColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, rec.RecordID, rec.MachineID, rec.EventName, rec.CorrelationID, rec.Lane, rec.Outcome, rec.Error, rec.Configuration, rec.DeferredCount, rec.DurationMs, rec.CreatedAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *JournalRepository) GetByRecordID(ctx context.Context, recordID uuid.UUID) (*journal.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+journalColumns+`
		FROM event_journal WHERE record_id=$1
	`, recordID)
	return scanJournal(row)
}

func (r *JournalRepository) ListByMachine(ctx context.Context, machineID string, limit int) ([]*journal.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+journalColumns+`
		FROM event_journal WHERE machine_id=$1 ORDER BY created_at DESC LIMIT $2
	`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJournal(rows)
}

func (r *JournalRepository) ListFailures(ctx context.Context, limit int) ([]*journal.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+journalColumns+`
		FROM event_journal WHERE outcome=$1 ORDER BY created_at DESC LIMIT $2
	`, journal.OutcomeFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJournal(rows)
}

func collectJournal(rows pgx.Rows) ([]*journal.Record, error) {
	var records []*journal.Record
	for rows.Next() {
		rec, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanJournal(row pgx.Row) (*journal.Record, error) {
	var rec journal.Record
	if err := row.Scan(&rec.RecordID, &rec.MachineID, &rec.EventName, &rec.CorrelationID, &rec.Lane, &rec.Outcome, &rec.Error, &rec.Configuration, &rec.DeferredCount, &rec.DurationMs, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
