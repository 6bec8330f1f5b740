package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var bucketModels = []byte("models")

// BoltStore is a Store backed by a bbolt file. Each model is one key in the
// "models" bucket, keyed by name, holding a JSON-encoded Record. Writes are
// transactional, so a crash mid-save leaves the previous record intact.
type BoltStore struct {
	db     *bolt.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewBoltStore opens (or creates) a bbolt database at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketModels)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create models bucket: %w", err)
	}
	return &BoltStore{
		db:     db,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the store. By default, all logs are discarded.
func (s *BoltStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *BoltStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModels)
		key := []byte(rec.Name)
		if existing := b.Get(key); existing != nil {
			var prev Record
			if err := json.Unmarshal(existing, &prev); err != nil {
				return fmt.Errorf("decode existing record: %w", err)
			}
			rec.CreatedAt = prev.CreatedAt
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("could not save model '%s': %w", rec.Name, err)
	}

	s.logger.DebugContext(ctx, "Model saved",
		slog.String("model_name", rec.Name),
		slog.Int("order", rec.Order),
		slog.Int("size", rec.Size),
		slog.Int("bytes", len(rec.Serialized)),
	)
	return nil
}

// Load implements Store.
func (s *BoltStore) Load(ctx context.Context, name string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketModels).Get([]byte(name))
		if v == nil {
			return nil
		}
		// Copy out, the slice is only valid inside the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("could not load model '%s': %w", name, err)
	}
	if data == nil {
		return Record{}, notFound(name)
	}

	var rec Record
	if err = json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("could not decode model '%s': %w", name, err)
	}
	return rec, nil
}

// List implements Store. Keys are kept in byte order by bbolt, which gives the
// same ordering as the SQL store's ORDER BY on names.
func (s *BoltStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record '%s': %w", k, err)
			}
			rec.Serialized = ""
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("could not remove model '%s': %w", name, err)
	}
	s.logger.InfoContext(ctx, "Model removed", slog.String("model_name", name))
	return nil
}
