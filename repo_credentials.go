package auth

import (
	"context"

	"github.com/uptrace/bun"
)

type credentials struct {
	db *bun.DB
}

var _ CredentialStore = (*credentials)(nil)

// NewCredentialsRepository stores local password hashes in the credentials table.
func NewCredentialsRepository(db *bun.DB) CredentialStore {
	return &credentials{db: db}
}

func (r *credentials) FindCredential(ctx context.Context, email string) (*Credential, error) {
	record := &Credential{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (r *credentials) SaveCredential(ctx context.Context, credential *Credential) error {
	_, err := r.db.NewInsert().
		Model(credential).
		On("CONFLICT (email) DO UPDATE").
		Set("password_hash = EXCLUDED.password_hash").
		Set("disabled = EXCLUDED.disabled").
		Exec(ctx)
	return err
}
