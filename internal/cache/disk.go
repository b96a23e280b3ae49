package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/OCAP2/framereplay/pkg/core"
	badger "github.com/dgraph-io/badger/v4"
)

const diskPrefix = "dataset/"

// Disk persists parsed datasets between runs so an unchanged source file
// does not have to be decoded again.
type Disk struct {
	db *badger.DB
}

// OpenDisk opens (or creates) a badger store in dir.
func OpenDisk(dir string) (*Disk, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return openDisk(opts)
}

// OpenInMemoryDisk opens a store that lives only for the process lifetime.
func OpenInMemoryDisk() (*Disk, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openDisk(opts)
}

func openDisk(opts badger.Options) (*Disk, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset cache: %w", err)
	}
	return &Disk{db: db}, nil
}

func pathPrefix(path string) []byte {
	return []byte(diskPrefix + path + "\x00")
}

func diskKey(k Key) []byte {
	b := pathPrefix(k.Path)
	b = strconv.AppendInt(b, k.ModTime.UnixNano(), 10)
	b = append(b, ':')
	return strconv.AppendInt(b, k.Size, 10)
}

// Get returns the stored dataset for key. A missing entry is not an error.
func (d *Disk) Get(key Key) (core.Dataset, bool, error) {
	var ds core.Dataset
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &ds)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.Dataset{}, false, nil
	}
	if err != nil {
		return core.Dataset{}, false, fmt.Errorf("read cached dataset %s: %w", key.Path, err)
	}
	return ds, true, nil
}

// Put stores ds under key after removing older versions of the same path.
func (d *Disk) Put(key Key, ds core.Dataset) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", key.Path, err)
	}
	if err := d.Invalidate(key.Path); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(diskKey(key), raw)
	})
}

// Invalidate removes every stored version of path.
func (d *Disk) Invalidate(path string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pathPrefix(path)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached dataset %s: %w", path, err)
	}
	return nil
}

func (d *Disk) Close() error {
	return d.db.Close()
}
