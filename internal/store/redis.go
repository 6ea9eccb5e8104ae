package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis is a Store over a Redis server. Records and carts are JSON strings;
// the set of known MPIDs is kept in a Redis set.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedisWithURL connects using a redis:// URL.
func NewRedisWithURL(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), prefix), nil
}

// NewRedis wraps an existing client. The store owns it after the call.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "idsync"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) recordKey(mpid models.MPID) string {
	return r.prefix + ":record:" + string(mpid)
}

func (r *Redis) productsKey(mpid models.MPID) string {
	return r.prefix + ":products:" + string(mpid)
}

func (r *Redis) stateKey() string { return r.prefix + ":state" }
func (r *Redis) mpidsKey() string { return r.prefix + ":mpids" }

func (r *Redis) GetRecord(ctx context.Context, mpid models.MPID) (*models.Record, error) {
	raw, err := r.client.Get(ctx, r.recordKey(mpid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record[%s]: %w", mpid, err)
	}
	return decodeRedisRecord(mpid, raw)
}

func (r *Redis) PutRecord(ctx context.Context, rec *models.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record[%s]: %w", rec.MPID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(rec.MPID), raw, 0)
		pipe.SAdd(ctx, r.mpidsKey(), string(rec.MPID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put record[%s]: %w", rec.MPID, err)
	}
	return nil
}

func (r *Redis) ListRecords(ctx context.Context) ([]*models.Record, error) {
	mpids, err := r.client.SMembers(ctx, r.mpidsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(mpids) == 0 {
		return nil, nil
	}
	sort.Strings(mpids)

	keys := make([]string, len(mpids))
	for i, m := range mpids {
		keys[i] = r.recordKey(models.MPID(m))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]*models.Record, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRedisRecord(models.MPID(mpids[i]), []byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) GetProducts(ctx context.Context, mpid models.MPID) ([]models.Product, error) {
	raw, err := r.client.Get(ctx, r.productsKey(mpid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get products[%s]: %w", mpid, err)
	}
	var out []models.Product
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode products[%s]: %w", mpid, err)
	}
	return out, nil
}

func (r *Redis) SetProducts(ctx context.Context, mpid models.MPID, products []models.Product) error {
	raw, err := json.Marshal(models.CopyProducts(products))
	if err != nil {
		return fmt.Errorf("failed to encode products[%s]: %w", mpid, err)
	}
	if err := r.client.Set(ctx, r.productsKey(mpid), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set products[%s]: %w", mpid, err)
	}
	return nil
}

func (r *Redis) GetState(ctx context.Context) (*models.GlobalState, error) {
	raw, err := r.client.Get(ctx, r.stateKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}
	var st models.GlobalState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode global state: %w", err)
	}
	return &st, nil
}

func (r *Redis) PutState(ctx context.Context, st *models.GlobalState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode global state: %w", err)
	}
	if err := r.client.Set(ctx, r.stateKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set global state: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

func decodeRedisRecord(mpid models.MPID, raw []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record[%s]: %w", mpid, err)
	}
	rec.MPID = mpid
	if rec.UserIdentities == nil {
		rec.UserIdentities = models.UserIdentities{}
	}
	if rec.UserAttributes == nil {
		rec.UserAttributes = models.Attributes{}
	}
	if rec.CookieSyncDates == nil {
		rec.CookieSyncDates = models.CookieSyncDates{}
	}
	return &rec, nil
}
