package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "job:"

func keyJob(id string) []byte {
	return []byte(keyPrefix + id)
}

// BadgerStoreConfig configures the persistent job store.
type BadgerStoreConfig struct {
	// DBPath is the BadgerDB directory. Created if missing.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// InMemory runs BadgerDB without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`
}

// BadgerStore persists jobs in BadgerDB as JSON values keyed by "job:<id>".
//
// Thread safety:
// Safe for concurrent use; BadgerDB transactions provide isolation.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the job database.
func NewBadgerStore(ctx context.Context, cfg BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, errors.New("badger job store requires db_path")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	stored := job.Clone()
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyJob(job.ID), data)
	})
}

func (s *BadgerStore) Get(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var job Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyJob(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BadgerStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	var result []*Job

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			if opts.matches(&job) {
				result = append(result, &job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return limitNewestFirst(result, opts.Limit), nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
