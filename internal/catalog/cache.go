package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through redis layer over a Reader. Routing consults the
// payment-method list on every sale, so the hot reads are cached per business.
type Cache struct {
	inner  Reader
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Reader with redis caching.
func NewCache(inner Reader, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{inner: inner, client: client, ttl: ttl}
}

func accountsKey(businessID uuid.UUID) string {
	return fmt.Sprintf("catalog:%s:funding_accounts", businessID)
}

func methodsKey(businessID uuid.UUID) string {
	return fmt.Sprintf("catalog:%s:payment_methods", businessID)
}

// ActiveFundingAccounts returns cached accounts, falling back to the inner reader.
func (c *Cache) ActiveFundingAccounts(ctx context.Context, businessID uuid.UUID) ([]FundingAccount, error) {
	var accounts []FundingAccount
	if ok := c.lookup(ctx, accountsKey(businessID), &accounts); ok {
		return accounts, nil
	}
	accounts, err := c.inner.ActiveFundingAccounts(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, accountsKey(businessID), accounts)
	return accounts, nil
}

// ActivePaymentMethods returns cached methods, falling back to the inner reader.
func (c *Cache) ActivePaymentMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if ok := c.lookup(ctx, methodsKey(businessID), &methods); ok {
		return methods, nil
	}
	methods, err := c.inner.ActivePaymentMethods(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, methodsKey(businessID), methods)
	return methods, nil
}

// PaymentMethodByID resolves a method from the cached list when possible.
func (c *Cache) PaymentMethodByID(ctx context.Context, businessID, id uuid.UUID) (*PaymentMethod, error) {
	methods, err := c.ActivePaymentMethods(ctx, businessID)
	if err == nil {
		for i := range methods {
			if methods[i].ID == id {
				return &methods[i], nil
			}
		}
	}
	// Inactive or just-created methods miss the cached list.
	return c.inner.PaymentMethodByID(ctx, businessID, id)
}

// Invalidate drops cached entries for a business after catalog changes.
func (c *Cache) Invalidate(ctx context.Context, businessID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, accountsKey(businessID), methodsKey(businessID)).Err()
}

func (c *Cache) lookup(ctx context.Context, key string, target any) bool {
	if c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return false
		}
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}
