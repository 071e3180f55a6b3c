package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the bun backed AccountStore with transactional variants.
type Accounts interface {
	AccountStore

	CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
}

type accounts struct {
	repo repository.Repository[*Account]
	db   *bun.DB
}

var _ Accounts = (*accounts)(nil)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{repo: repo, db: db}
}

func (r *accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.FindByEmailTx(ctx, r.db, email)
}

func (r *accounts) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return r.findOne(ctx, tx, "email", email)
}

func (r *accounts) FindByExternalID(ctx context.Context, externalID string) (*Account, error) {
	return r.findOne(ctx, r.db, "external_id", externalID)
}

func (r *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := r.repo.GetByID(ctx, id.String())
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return account, nil
}

func (r *accounts) ListByStatus(ctx context.Context, status AccountStatus) ([]*Account, error) {
	records := []*Account{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", status).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *accounts) Create(ctx context.Context, account *Account) (*Account, error) {
	return r.CreateTx(ctx, r.db, account)
}

func (r *accounts) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)

	if _, err := r.findOne(ctx, tx, "email", account.Email); err == nil {
		return nil, withMeta(ErrEmailAlreadyRegistered, map[string]any{"email": account.Email})
	} else if !IsNotFound(err) {
		return nil, err
	}

	return r.repo.CreateTx(ctx, tx, account)
}

func (r *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	return r.UpdateStatusTx(ctx, r.db, id, status, opts...)
}

// UpdateStatusTx writes only the status columns. The block reason is
// cleared unless the new status is BLOCKED.
func (r *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	now := time.Now().UTC()
	record := &Account{
		ID:        id,
		Status:    status,
		UpdatedAt: &now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	if status != AccountStatusBlocked {
		record.BlockReason = ""
	}

	columns := []string{"status", "block_reason", "updated_at"}
	if record.StatusChangedAt != nil {
		columns = append(columns, "status_changed_at")
	}

	res, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, notFound(map[string]any{"id": id.String()})
	}

	return r.findOne(ctx, tx, "id", id)
}

func (r *accounts) findOne(ctx context.Context, tx bun.IDB, column string, value any) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound(map[string]any{column: value})
		}
		return nil, err
	}
	return record, nil
}
