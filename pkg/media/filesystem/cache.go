package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// record is the extracted metadata of one file. It is reused as long as the
// file keeps the same size and modification time.
type record struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime"`
	MIME    string `json:"mime"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Genre   string `json:"genre,omitempty"`
	Year    int    `json:"year,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// Key namespace:
//
//	"m:" + relative path -> record (JSON)
const prefixRecord = "m:"

func keyRecord(rel string) []byte {
	return []byte(prefixRecord + rel)
}

// cache stores records in BadgerDB.
type cache struct {
	db *badger.DB
}

func openCache(path string) (*cache, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata cache at %q: %w", path, err)
	}
	return &cache{db: db}, nil
}

// get returns the stored record for rel if it still matches size and mtime.
func (c *cache) get(rel string, size, mtime int64) (*record, bool) {
	var rec record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRecord(rel))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false
	}
	if rec.Size != size || rec.ModTime != mtime {
		return nil, false
	}
	return &rec, true
}

func (c *cache) put(rel string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyRecord(rel), data)
	})
}

func (c *cache) delete(rel string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyRecord(rel))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (c *cache) close() error {
	return c.db.Close()
}
