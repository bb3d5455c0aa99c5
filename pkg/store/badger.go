package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	imagePrefix  = "image/"
	shapesPrefix = "shapes/"
)

// Badger persists run outputs in a BadgerDB database. Both output keys of a
// commit are written inside one transaction, so a persistence failure
// leaves neither registered.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens (creating if needed) a BadgerDB store at path. With
// inMemory set, path is ignored and nothing touches disk.
func OpenBadger(path string, inMemory bool) (*Badger, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

// Commit writes both outputs in a single transaction.
func (b *Badger) Commit(_ context.Context, imageKey string, img *SpatialImage, shapesKey string, shapes []byte) error {
	encoded, err := MarshalSpatialImage(img)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(imagePrefix+imageKey), encoded); err != nil {
			return err
		}
		return txn.Set([]byte(shapesPrefix+shapesKey), shapes)
	})
}

// Image reads a committed embedding image.
func (b *Badger) Image(_ context.Context, key string) (*SpatialImage, error) {
	encoded, err := b.get(imagePrefix + key)
	if err != nil {
		return nil, err
	}
	return UnmarshalSpatialImage(encoded)
}

// Shapes reads a committed geometry collection.
func (b *Badger) Shapes(_ context.Context, key string) ([]byte, error) {
	return b.get(shapesPrefix + key)
}

func (b *Badger) get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}
