package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type stateChanges struct {
	db *bun.DB
}

var _ StateChangeLog = (*stateChanges)(nil)

// NewStateChangesRepository stores account transitions in account_state_changes.
func NewStateChangesRepository(db *bun.DB) StateChangeLog {
	return &stateChanges{db: db}
}

func (r *stateChanges) AppendStateChange(ctx context.Context, change *AccountStateChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	_, err := r.db.NewInsert().
		Model(change).
		Exec(ctx)
	return err
}

func (r *stateChanges) ListStateChanges(ctx context.Context, accountID uuid.UUID) ([]*AccountStateChange, error) {
	records := []*AccountStateChange{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Order("occurred_at ASC").
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return []*AccountStateChange{}, nil
		}
		return nil, err
	}
	return records, nil
}
