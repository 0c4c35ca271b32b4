// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockcache keeps the metadata of downloaded compact blocks.  The
// blocks themselves live as files under Root()/blocks; the index is a bolt
// database at Root()/blockmeta.db keyed by big-endian height.
package blockcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
	bolt "go.etcd.io/bbolt"
)

const (
	// DBName is the file name of the metadata index inside the root.
	DBName = "blockmeta.db"

	// BlocksDir holds the cached compact block files.
	BlocksDir = "blocks"

	// metaLen is hash, time, Sapling output count and Orchard action
	// count.
	metaLen = 32 + 4 + 4 + 4

	defaultDBTimeout = 10 * time.Second
)

var (
	metaBucket = []byte("blockmeta")

	// ErrCacheNotInitialized is returned by reads and writes before Init
	// has run.
	ErrCacheNotInitialized = errors.New("block cache is not initialized")
)

// Cache is an open block metadata cache.
type Cache struct {
	db   *bolt.DB
	root string
}

// Open opens the cache rooted at root, creating the directory and index file
// if needed.
func Open(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(
		filepath.Join(root, DBName), 0600,
		&bolt.Options{Timeout: defaultDBTimeout},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open block cache: %w", err)
	}
	return &Cache{db: db, root: root}, nil
}

// Init creates the index bucket and the blocks directory.  It is idempotent.
func (c *Cache) Init() error {
	if err := os.MkdirAll(filepath.Join(c.root, BlocksDir), 0700); err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
}

// Root is the directory the cache lives in.
func (c *Cache) Root() string {
	return c.root
}

// Close releases the index.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Write records the metadata of blocks, replacing any entries at the same
// heights.
func (c *Cache) Write(blocks []engine.BlockMeta) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return ErrCacheNotInitialized
		}
		for i := range blocks {
			err := b.Put(
				heightKey(blocks[i].Height),
				serializeMeta(&blocks[i]),
			)
			if err != nil {
				return err
			}
		}
		log.Debugf("Cached metadata for %d blocks", len(blocks))
		return nil
	})
}

// MaxCachedHeight returns the highest cached height.
func (c *Cache) MaxCachedHeight() (fn.Option[engine.Height], error) {
	height := fn.None[engine.Height]()
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return ErrCacheNotInitialized
		}
		k, _ := b.Cursor().Last()
		if k != nil {
			height = fn.Some(engine.Height(binary.BigEndian.Uint32(k)))
		}
		return nil
	})
	return height, err
}

// FindBlock returns the cached metadata at height.
func (c *Cache) FindBlock(height engine.Height) (fn.Option[engine.BlockMeta],
	error) {

	meta := fn.None[engine.BlockMeta]()
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return ErrCacheNotInitialized
		}
		v := b.Get(heightKey(height))
		if v == nil {
			return nil
		}
		m, err := deserializeMeta(height, v)
		if err != nil {
			return err
		}
		meta = fn.Some(*m)
		return nil
	})
	return meta, err
}

// TruncateToHeight drops every entry above height.
func (c *Cache) TruncateToHeight(height engine.Height) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return ErrCacheNotInitialized
		}

		// Collect first; deleting under a live cursor skips keys.
		var doomed [][]byte
		cur := b.Cursor()
		for k, _ := cur.Seek(heightKey(height + 1)); k != nil; k, _ = cur.Next() {
			if binary.BigEndian.Uint32(k) <= uint32(height) {
				continue
			}
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		if len(doomed) > 0 {
			log.Debugf("Dropped %d cached blocks above height %d",
				len(doomed), height)
		}
		return nil
	})
}

func heightKey(h engine.Height) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(h))
	return k[:]
}

func serializeMeta(m *engine.BlockMeta) []byte {
	v := make([]byte, metaLen)
	copy(v, m.BlockHash[:])
	binary.BigEndian.PutUint32(v[32:], m.BlockTime)
	binary.BigEndian.PutUint32(v[36:], m.SaplingOutputsCount)
	binary.BigEndian.PutUint32(v[40:], m.OrchardActionsCount)
	return v
}

func deserializeMeta(h engine.Height, v []byte) (*engine.BlockMeta, error) {
	if len(v) != metaLen {
		return nil, fmt.Errorf("block %d: metadata has %d bytes, "+
			"want %d", h, len(v), metaLen)
	}
	m := &engine.BlockMeta{
		Height:              h,
		BlockTime:           binary.BigEndian.Uint32(v[32:]),
		SaplingOutputsCount: binary.BigEndian.Uint32(v[36:]),
		OrchardActionsCount: binary.BigEndian.Uint32(v[40:]),
	}
	copy(m.BlockHash[:], v[:32])
	return m, nil
}

// A Cache is handed to the engine as its block source.
var _ engine.BlockSource = (*Cache)(nil)
