// Package redis provides a ports.StateCell backed by Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/espalier/pkg/persistence"
	"github.com/aretw0/espalier/pkg/ports"
)

// Cell implements ports.StateCell on a single Redis key.
type Cell[S any] struct {
	client *backend.Client
	prefix string
	id     string
	ttl    time.Duration
	codec  persistence.Codec
}

type Option[S any] func(*Cell[S])

// WithTTL sets the expiration for the stored state. Each Write refreshes it.
func WithTTL[S any](ttl time.Duration) Option[S] {
	return func(c *Cell[S]) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix[S any](prefix string) Option[S] {
	return func(c *Cell[S]) {
		c.prefix = prefix
	}
}

// WithCodec replaces the default JSON codec.
func WithCodec[S any](codec persistence.Codec) Option[S] {
	return func(c *Cell[S]) {
		c.codec = codec
	}
}

// New creates a Redis cell for the machine identified by id.
func New[S any](address, password string, db int, id string, opts ...Option[S]) *Cell[S] {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, id, opts...)
}

// NewFromClient creates a Redis cell from an existing client.
func NewFromClient[S any](client *backend.Client, id string, opts ...Option[S]) *Cell[S] {
	cell := &Cell[S]{
		client: client,
		prefix: "espalier:state:",
		id:     id,
		ttl:    0, // No expiration by default
		codec:  persistence.JSON{},
	}

	for _, opt := range opts {
		opt(cell)
	}

	return cell
}

func (c *Cell[S]) key() string {
	return c.prefix + c.id
}

// Read retrieves the state from Redis.
func (c *Cell[S]) Read(ctx context.Context) (S, error) {
	var state S

	val, err := c.client.Get(ctx, c.key()).Bytes()
	if err != nil {
		if err == backend.Nil {
			return state, ports.ErrStateNotFound
		}
		return state, fmt.Errorf("failed to get from redis: %w", err)
	}

	if err := c.codec.Unmarshal(val, &state); err != nil {
		return state, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

// Write persists the state to Redis.
func (c *Cell[S]) Write(ctx context.Context, state S) error {
	data, err := c.codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := c.client.Set(ctx, c.key(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *Cell[S]) Close() error {
	return c.client.Close()
}
