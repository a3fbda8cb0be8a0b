package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/redaction-worker/internal/layout"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

// DocumentRecord is what the service remembers about a processed document
type DocumentRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id,omitempty"`
	Filename        string          `json:"filename"`
	Status          string          `json:"status"`
	PageCount       int             `json:"page_count"`
	Layout          *layout.Summary `json:"layout,omitempty"`
	PII             *pii.Summary    `json:"pii,omitempty"`
	TotalRedactions int             `json:"total_redactions"`
	ReportPath      string          `json:"report_path,omitempty"`
	PDFPath         string          `json:"pdf_path,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DocumentStore keeps document records by ID. Get returns nil, nil when
// the record does not exist.
type DocumentStore interface {
	Put(ctx context.Context, id string, record *DocumentRecord) error
	Get(ctx context.Context, id string) (*DocumentRecord, error)
}

// MemoryStore is an in-process DocumentStore
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]DocumentRecord
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]DocumentRecord)}
}

// Put stores a copy of the record
func (m *MemoryStore) Put(_ context.Context, id string, record *DocumentRecord) error {
	if id == "" {
		return fmt.Errorf("document ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = *record
	return nil
}

// Get returns a copy of the record or nil
func (m *MemoryStore) Get(_ context.Context, id string) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// RedisStore keeps records as JSON strings with a TTL
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "redaction:document:", ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Put stores the record, refreshing its TTL
func (r *RedisStore) Put(ctx context.Context, id string, record *DocumentRecord) error {
	if id == "" {
		return fmt.Errorf("document ID is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := r.client.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return nil
}

// Get loads a record or returns nil when it expired or never existed
func (r *RedisStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	var rec DocumentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", id, err)
	}
	return &rec, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
