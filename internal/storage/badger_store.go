package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/noahxzhu/discord-scheduler/internal/model"
)

// BadgerStore keeps each queue as a single document under queue/<name>.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dataDir))
}

func newInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLogger(nil).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func key(queue string) []byte {
	return []byte("queue/" + queue)
}

func (s *BadgerStore) Load(queue string) ([]*model.Delivery, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(queue))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue %q: %w", queue, err)
	}
	ds, migrated, err := decode(data)
	if err != nil {
		return nil, err
	}
	if migrated {
		if err := s.Save(queue, ds); err != nil {
			return nil, fmt.Errorf("failed to save migrated queue %q: %w", queue, err)
		}
	}
	return ds, nil
}

func (s *BadgerStore) Save(queue string, deliveries []*model.Delivery) error {
	data, err := json.Marshal(model.QueueFile{
		Version:    model.QueueFileVersion,
		Deliveries: nonNil(deliveries),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(queue), data)
	}); err != nil {
		return fmt.Errorf("failed to write queue %q: %w", queue, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
