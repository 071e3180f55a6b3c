package auth

import (
	"context"

	"github.com/uptrace/bun"
)

// Attempts is the bun backed AttemptLog.
type Attempts interface {
	AttemptLog
	AppendTx(ctx context.Context, tx bun.IDB, attempt *LoginAttempt) error
}

type attempts struct {
	db *bun.DB
}

var _ Attempts = (*attempts)(nil)

func NewAttemptsRepository(db *bun.DB) Attempts {
	return &attempts{db: db}
}

func (r *attempts) Append(ctx context.Context, attempt *LoginAttempt) error {
	return r.AppendTx(ctx, r.db, attempt)
}

func (r *attempts) AppendTx(ctx context.Context, tx bun.IDB, attempt *LoginAttempt) error {
	_, err := tx.NewInsert().
		Model(attempt).
		Exec(ctx)
	return err
}

func (r *attempts) ListByEmail(ctx context.Context, email string) ([]*LoginAttempt, error) {
	records := []*LoginAttempt{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.email = ?", email).
		Order("attempted_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return []*LoginAttempt{}, nil
		}
		return nil, err
	}
	return records, nil
}
