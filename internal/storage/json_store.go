package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/noahxzhu/discord-scheduler/internal/model"
)

// JSONStore keeps each queue in its own file under dir and rewrites the whole
// file on every save.
type JSONStore struct {
	mu  sync.Mutex
	dir string
}

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

func (s *JSONStore) path(queue string) string {
	return filepath.Join(s.dir, queue+".json")
}

func (s *JSONStore) Load(queue string) ([]*model.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(queue))
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Delivery{}, nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ds, migrated, err := decode(data)
	if err != nil {
		return nil, err
	}
	if migrated {
		// keep the ids handed out by the migration stable across restarts
		if err := s.saveLocked(queue, ds); err != nil {
			return nil, fmt.Errorf("failed to save migrated queue %q: %w", queue, err)
		}
	}
	return ds, nil
}

func (s *JSONStore) Save(queue string, deliveries []*model.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(queue, deliveries)
}

func (s *JSONStore) saveLocked(queue string, deliveries []*model.Delivery) error {
	data, err := json.MarshalIndent(model.QueueFile{
		Version:    model.QueueFileVersion,
		Deliveries: nonNil(deliveries),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, queue+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(queue)); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }

// decode reads the current document format and falls back to the flat array
// written by the old announcer and remindme plugins. migrated reports that
// the fallback was used.
func decode(data []byte) (ds []*model.Delivery, migrated bool, err error) {
	if len(data) == 0 {
		return []*model.Delivery{}, false, nil
	}

	var doc model.QueueFile
	if err := json.Unmarshal(data, &doc); err != nil {
		var legacy []legacyRecord
		if err2 := json.Unmarshal(data, &legacy); err2 == nil {
			return migrateLegacy(legacy), true, nil
		}
		return nil, false, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	ds = make([]*model.Delivery, 0, len(doc.Deliveries))
	for i, d := range doc.Deliveries {
		if d == nil {
			slog.Warn("Dropping empty delivery record", "index", i)
			continue
		}
		ds = append(ds, d)
	}
	return ds, false, nil
}

func nonNil(ds []*model.Delivery) []*model.Delivery {
	if ds == nil {
		return []*model.Delivery{}
	}
	return ds
}
