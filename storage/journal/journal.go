package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"nftmarket/core/types"
)

var (
	// ErrNotFound is returned when no receipt exists for the requested id.
	ErrNotFound = errors.New("journal: receipt not found")

	headKey        = []byte("head")
	receiptPrefix  = []byte("receipt/")
	sequencePrefix = []byte("seq/")
)

// Head is the last committed ledger position.
type Head struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}

// Store persists ledger receipts and the committed head in LevelDB. The head
// and the receipt of a height are written in one batch.
type Store struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// Open creates or opens a receipts journal at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("journal: path required")
	}
	db, err := leveldb.OpenFile(trimmed, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", trimmed, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a journal backed by goleveldb's in-memory storage.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func sequenceKey(height uint64) []byte {
	key := make([]byte, len(sequencePrefix)+8)
	copy(key, sequencePrefix)
	binary.BigEndian.PutUint64(key[len(sequencePrefix):], height)
	return key
}

func receiptKey(id string) []byte {
	return append(append([]byte(nil), receiptPrefix...), id...)
}

// Append records the receipt and advances the head to its height.
func (s *Store) Append(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("journal: nil receipt")
	}
	if strings.TrimSpace(receipt.ID) == "" {
		return fmt.Errorf("journal: receipt id required")
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	head, err := json.Marshal(Head{Height: receipt.Height, Root: receipt.StateRoot})
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(receiptKey(receipt.ID), encoded)
	batch.Put(sequenceKey(receipt.Height), []byte(receipt.ID))
	batch.Put(headKey, head)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Write(batch, nil)
}

// Receipt returns the receipt stored under id.
func (s *Store) Receipt(id string) (*types.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(receiptKey(strings.TrimSpace(id)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(data, receipt); err != nil {
		return nil, fmt.Errorf("journal: decode receipt %s: %w", id, err)
	}
	return receipt, nil
}

// Head returns the last committed head. ok is false for an empty journal.
func (s *Store) Head() (Head, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(headKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Head{}, false, nil
	}
	if err != nil {
		return Head{}, false, err
	}
	var head Head
	if err := json.Unmarshal(data, &head); err != nil {
		return Head{}, false, fmt.Errorf("journal: decode head: %w", err)
	}
	return head, true, nil
}

// Recent returns up to limit receipts, newest first.
func (s *Store) Recent(limit int) ([]*types.Receipt, error) {
	if limit <= 0 {
		return []*types.Receipt{}, nil
	}
	s.mu.RLock()
	ids := make([]string, 0, limit)
	iter := s.db.NewIterator(util.BytesPrefix(sequencePrefix), nil)
	for ok := iter.Last(); ok && len(ids) < limit; ok = iter.Prev() {
		ids = append(ids, string(append([]byte(nil), iter.Value()...)))
	}
	iter.Release()
	err := iter.Error()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Receipt, 0, len(ids))
	for _, id := range ids {
		receipt, err := s.Receipt(id)
		if err != nil {
			return nil, err
		}
		out = append(out, receipt)
	}
	return out, nil
}
