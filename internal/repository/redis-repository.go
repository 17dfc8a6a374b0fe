// internal/repository/redis-repository.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"maxxpharm/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	stateTTL = 24 * time.Hour
	cartTTL  = 7 * 24 * time.Hour
)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func stateKey(userID int64) string { return fmt.Sprintf("user_state:%d", userID) }
func cartKey(userID int64) string  { return fmt.Sprintf("cart:%d", userID) }

// User state methods
func (r *RedisRepository) SaveUserState(ctx context.Context, userID int64, state *domain.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}

	err = r.client.Set(ctx, stateKey(userID), data, stateTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save user state to redis: %w", err)
	}

	return nil
}

// GetUserState returns nil, nil when the user has no saved state
func (r *RedisRepository) GetUserState(ctx context.Context, userID int64) (*domain.UserState, error) {
	data, err := r.client.Get(ctx, stateKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user state from redis: %w", err)
	}

	var state domain.UserState
	err = json.Unmarshal([]byte(data), &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal user state: %w", err)
	}

	return &state, nil
}

func (r *RedisRepository) DeleteUserState(ctx context.Context, userID int64) error {
	err := r.client.Del(ctx, stateKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete user state from redis: %w", err)
	}

	return nil
}

// Cart methods. The cart is a hash of product id -> quantity.
func (r *RedisRepository) AddToCart(ctx context.Context, userID, productID int64, quantity int) (int, error) {
	key := cartKey(userID)

	pipe := r.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, strconv.FormatInt(productID, 10), int64(quantity))
	pipe.Expire(ctx, key, cartTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to add to cart: %w", err)
	}

	return int(incr.Val()), nil
}

func (r *RedisRepository) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return r.RemoveFromCart(ctx, userID, productID)
	}

	key := cartKey(userID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(productID, 10), quantity)
	pipe.Expire(ctx, key, cartTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}

	return nil
}

func (r *RedisRepository) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	err := r.client.HDel(ctx, cartKey(userID), strconv.FormatInt(productID, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to remove from cart: %w", err)
	}

	return nil
}

// GetCart returns the cart lines ordered by product id
func (r *RedisRepository) GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	fields, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart from redis: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(fields))
	for field, value := range fields {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		quantity, err := strconv.Atoi(value)
		if err != nil || quantity <= 0 {
			continue
		}
		lines = append(lines, domain.CartLine{ProductID: productID, Quantity: quantity})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (r *RedisRepository) ClearCart(ctx context.Context, userID int64) error {
	err := r.client.Del(ctx, cartKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

// Helper method to clear everything stored for a user
func (r *RedisRepository) ClearUser(ctx context.Context, userID int64) error {
	err := r.client.Del(ctx, stateKey(userID), cartKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear user data from redis: %w", err)
	}

	return nil
}

// Health check method
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
