package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	settingsKey    = "catalog:settings"
	branchIndexKey = "catalog:branches"
	productIndex   = "catalog:products"
)

// Store persists catalog documents as JSON values in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a catalog store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("catalog: redis client required")
	}
	return &Store{redis: redisClient}
}

func branchKey(id string) string  { return fmt.Sprintf("catalog:branch:%s", id) }
func productKey(id string) string { return fmt.Sprintf("catalog:product:%s", id) }

// GetSettings returns the venue settings, or the defaults when none are saved.
func (s *Store) GetSettings(ctx context.Context) (*AppSettings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get settings: %w", err)
	}
	var settings AppSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings validates and stores the venue settings.
func (s *Store) SaveSettings(ctx context.Context, settings *AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now().UTC()
	return s.put(ctx, settingsKey, "", "", settings)
}

// GetBranch loads one branch.
func (s *Store) GetBranch(ctx context.Context, id string) (*Branch, error) {
	var b Branch
	if err := s.get(ctx, branchKey(id), &b); err != nil {
		return nil, fmt.Errorf("catalog: get branch %s: %w", id, err)
	}
	return &b, nil
}

// SaveBranch creates or replaces a branch, assigning an id when empty.
func (s *Store) SaveBranch(ctx context.Context, b *Branch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	return s.put(ctx, branchKey(b.ID), branchIndexKey, b.ID, b)
}

// DeleteBranch removes a branch.
func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	return s.remove(ctx, branchKey(id), branchIndexKey, id)
}

// ListBranches returns every branch ordered by name.
func (s *Store) ListBranches(ctx context.Context) ([]Branch, error) {
	raw, err := s.list(ctx, branchIndexKey, branchKey)
	if err != nil {
		return nil, fmt.Errorf("catalog: list branches: %w", err)
	}
	out := make([]Branch, 0, len(raw))
	for _, data := range raw {
		var b Branch
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal branch: %w", err)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// GetProduct loads one product.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := s.get(ctx, productKey(id), &p); err != nil {
		return nil, fmt.Errorf("catalog: get product %s: %w", id, err)
	}
	return &p, nil
}

// SaveProduct creates or replaces a product, assigning an id when empty.
func (s *Store) SaveProduct(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return s.put(ctx, productKey(p.ID), productIndex, p.ID, p)
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.remove(ctx, productKey(id), productIndex, id)
}

// ListProducts returns every product ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	raw, err := s.list(ctx, productIndex, productKey)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	out := make([]Product, 0, len(raw))
	for _, data := range raw {
		var p Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal product: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) get(ctx context.Context, key string, dst any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *Store) put(ctx context.Context, key, indexKey, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", key, err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	if indexKey != "" {
		pipe.SAdd(ctx, indexKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("catalog: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, key, indexKey, id string) error {
	pipe := s.redis.TxPipeline()
	del := pipe.Del(ctx, key)
	pipe.SRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", key, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("catalog: delete %s: %w", key, ErrNotFound)
	}
	return nil
}

func (s *Store) list(ctx context.Context, indexKey string, keyFn func(string) string) ([][]byte, error) {
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, []byte(str))
	}
	return out, nil
}

// IsNotFound reports whether err means a missing catalog document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
