package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lucero-pos/lucero/internal/shared"
)

type countingReader struct {
	accounts     []FundingAccount
	methods      []PaymentMethod
	accountCalls int
	methodCalls  int
}

func (r *countingReader) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]FundingAccount, error) {
	r.accountCalls++
	return r.accounts, nil
}

func (r *countingReader) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	r.methodCalls++
	return r.methods, nil
}

func (r *countingReader) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*PaymentMethod, error) {
	for i := range r.methods {
		if r.methods[i].ID == id {
			return &r.methods[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func newCacheFixture(t *testing.T) (*Cache, *countingReader) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reader := &countingReader{
		accounts: []FundingAccount{{ID: uuid.New(), Name: "Efectivo", Code: CashAccountCode, IsActive: true}},
		methods: []PaymentMethod{
			{ID: uuid.New(), Name: "Efectivo", Code: "EFECTIVO", Class: ClassCash, IsActive: true},
			{ID: uuid.New(), Name: "Tarjeta Visa", Code: "VISA", Class: ClassCardProvider, IsActive: true},
		},
	}
	return NewCache(reader, client, time.Minute), reader
}

func TestCacheServesSecondReadFromRedis(t *testing.T) {
	cache, reader := newCacheFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	first, err := cache.ActivePaymentMethods(ctx, businessID)
	require.NoError(t, err)
	second, err := cache.ActivePaymentMethods(ctx, businessID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, reader.methodCalls)

	_, err = cache.ActiveFundingAccounts(ctx, businessID)
	require.NoError(t, err)
	_, err = cache.ActiveFundingAccounts(ctx, businessID)
	require.NoError(t, err)
	require.Equal(t, 1, reader.accountCalls)
}

func TestCacheIsScopedPerBusiness(t *testing.T) {
	cache, reader := newCacheFixture(t)
	ctx := context.Background()

	_, err := cache.ActivePaymentMethods(ctx, uuid.New())
	require.NoError(t, err)
	_, err = cache.ActivePaymentMethods(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 2, reader.methodCalls)
}

func TestCacheInvalidate(t *testing.T) {
	cache, reader := newCacheFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	_, err := cache.ActivePaymentMethods(ctx, businessID)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, businessID))
	_, err = cache.ActivePaymentMethods(ctx, businessID)
	require.NoError(t, err)
	require.Equal(t, 2, reader.methodCalls)
}

func TestPaymentMethodByIDUsesCachedList(t *testing.T) {
	cache, reader := newCacheFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	method, err := cache.PaymentMethodByID(ctx, businessID, reader.methods[1].ID)
	require.NoError(t, err)
	require.Equal(t, ClassCardProvider, method.Class)

	again, err := cache.PaymentMethodByID(ctx, businessID, reader.methods[1].ID)
	require.NoError(t, err)
	require.Equal(t, method.ID, again.ID)
	require.Equal(t, 1, reader.methodCalls)
}
