package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"access-service/internal/models"
)

// ContextCache caches the organizational hierarchy in Redis. Only context
// data is cached; assignment state is always re-read from the store so that
// every resolution sees current truth.
type ContextCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewContextCache creates a new context cache instance
func NewContextCache(host string, port int, password string, db int, ttlSeconds int) (*ContextCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Return cache with nil client - will gracefully degrade to no caching
		return &ContextCache{
			client: nil,
			ttl:    time.Duration(ttlSeconds) * time.Second,
		}, nil
	}

	return &ContextCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (c *ContextCache) hierarchyKey(tenantID string, businessID uuid.UUID) string {
	return fmt.Sprintf("ctxtree:%s:%s", tenantID, businessID.String())
}

func (c *ContextCache) contextKey(tenantID string, contextID uuid.UUID) string {
	return fmt.Sprintf("ctx:%s:%s", tenantID, contextID.String())
}

// GetHierarchy retrieves a cached hierarchy tree for a business
func (c *ContextCache) GetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID) ([]models.ContextHierarchy, error) {
	if c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.hierarchyKey(tenantID, businessID)).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var tree []models.ContextHierarchy
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// SetHierarchy caches the hierarchy tree for a business
func (c *ContextCache) SetHierarchy(ctx context.Context, tenantID string, businessID uuid.UUID, tree []models.ContextHierarchy) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.hierarchyKey(tenantID, businessID), data, c.ttl).Err()
}

// GetContext retrieves a cached context by id
func (c *ContextCache) GetContext(ctx context.Context, tenantID string, contextID uuid.UUID) (*models.BusinessContext, error) {
	if c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.contextKey(tenantID, contextID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bc models.BusinessContext
	if err := json.Unmarshal(data, &bc); err != nil {
		return nil, err
	}
	return &bc, nil
}

// SetContext caches a context by id
func (c *ContextCache) SetContext(ctx context.Context, bc *models.BusinessContext) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(bc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.contextKey(bc.TenantID, bc.ID), data, c.ttl).Err()
}

// InvalidateBusiness removes the cached tree and every cached context of a
// business. Called on any context mutation.
func (c *ContextCache) InvalidateBusiness(ctx context.Context, tenantID string, businessID uuid.UUID) error {
	if c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, c.hierarchyKey(tenantID, businessID)).Err(); err != nil {
		return err
	}

	pattern := fmt.Sprintf("ctx:%s:*", tenantID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Close closes the Redis connection
func (c *ContextCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable returns true if the cache is available
func (c *ContextCache) IsAvailable() bool {
	return c.client != nil
}
