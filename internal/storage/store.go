// Package storage persists delivery queues. Every save replaces the whole
// collection of a queue; there are no incremental writes.
package storage

import (
	"fmt"

	"github.com/noahxzhu/discord-scheduler/internal/config"
	"github.com/noahxzhu/discord-scheduler/internal/model"
)

type Store interface {
	// Load returns the persisted collection, or an empty one if nothing was saved yet.
	Load(queue string) ([]*model.Delivery, error)
	Save(queue string, deliveries []*model.Delivery) error
	Close() error
}

const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case BackendJSON, "":
		return NewJSONStore(cfg.Dir), nil
	case BackendBadger:
		return NewBadgerStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
