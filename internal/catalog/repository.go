package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucero-pos/lucero/internal/shared"
)

// Repository provides PostgreSQL backed catalog reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveFundingAccounts returns the business's active funding accounts.
func (r *Repository) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]FundingAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, name, code, is_active
		FROM funding_accounts
		WHERE business_id = $1 AND is_active
		ORDER BY code`, businessID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list funding accounts: %w", err)
	}
	defer rows.Close()

	var accounts []FundingAccount
	for rows.Next() {
		var a FundingAccount
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Code, &a.IsActive); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ActivePaymentMethods returns the business's active payment methods.
func (r *Repository) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, name, code, class, is_active
		FROM payment_methods
		WHERE business_id = $1 AND is_active
		ORDER BY code`, businessID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.Name, &m.Code, &m.Class, &m.IsActive); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// PaymentMethodByID loads a single method scoped to the business.
func (r *Repository) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*PaymentMethod, error) {
	var m PaymentMethod
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, code, class, is_active
		FROM payment_methods
		WHERE business_id = $1 AND id = $2`, businessID, id).
		Scan(&m.ID, &m.BusinessID, &m.Name, &m.Code, &m.Class, &m.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
