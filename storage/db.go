package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
)

const (
	levelDBCacheMB   = 16
	levelDBHandles   = 64
	levelDBNamespace = "nftmarket/state/"
)

// Database is the key-value backend holding the ledger's state trie nodes.
// Both implementations expose the same trie database so the ledger can run
// against memory in tests and LevelDB in the daemon.
type Database interface {
	TrieDB() *triedb.Database
	Close()
}

type backend struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newBackend(disk ethdb.Database) backend {
	return backend{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

func (b backend) TrieDB() *triedb.Database { return b.trieDB }

func (b backend) Close() {
	if b.trieDB != nil {
		_ = b.trieDB.Close()
	}
	if b.disk != nil {
		_ = b.disk.Close()
	}
}

// --- In-Memory DB (for testing) ---

// MemDB keeps all trie nodes in memory.
type MemDB struct {
	backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(rawdb.NewMemoryDatabase())}
}

// --- Persistent DB ---

// LevelDB is a persistent trie node store.
type LevelDB struct {
	backend
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.New(path, levelDBCacheMB, levelDBHandles, levelDBNamespace, false)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	return &LevelDB{backend: newBackend(rawdb.NewDatabase(kv))}, nil
}
