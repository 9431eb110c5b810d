package badgerdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Key prefixes for BadgerDB storage
const (
	blockKeyPrefix      = "block:"
	historyKeyPrefix    = "history:"
	whitelistKeyPrefix  = "whitelist:"
	reputationKeyPrefix = "rep:"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("not found")

// Store persists blocks, block history, and the whitelist in an
// embedded BadgerDB. Values are JSON.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database, used in tests and dry-run mode.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// --- blocks ---

// PutBlock stores a block record keyed by IP
func (s *Store) PutBlock(block *entity.BlockRecord) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blockKeyPrefix+block.IP), data)
	})
}

// GetBlock returns the block record for an IP, or ErrNotFound
func (s *Store) GetBlock(ip string) (*entity.BlockRecord, error) {
	var block entity.BlockRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blockKeyPrefix + ip))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get block: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &block)
		})
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// DeleteBlock removes the block record for an IP. Missing keys are not
// an error.
func (s *Store) DeleteBlock(ip string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(blockKeyPrefix + ip))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ListBlocks returns every stored block record
func (s *Store) ListBlocks() ([]entity.BlockRecord, error) {
	var blocks []entity.BlockRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var block entity.BlockRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &block)
			})
			if err != nil {
				return fmt.Errorf("decode block: %w", err)
			}
			blocks = append(blocks, block)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// --- history ---

// AppendHistory stores one audit trail entry. Keys embed the timestamp
// so iteration returns entries in chronological order per IP.
func (s *Store) AppendHistory(h *entity.BlockHistory) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	key := fmt.Sprintf("%s%s:%d:%s", historyKeyPrefix, h.IP, h.CreatedAt.UnixNano(), h.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// HistoryForIP returns the audit trail for an IP, oldest first, capped
// at limit (0 means no cap)
func (s *Store) HistoryForIP(ip string, limit int) ([]entity.BlockHistory, error) {
	var entries []entity.BlockHistory
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(historyKeyPrefix + ip + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var h entity.BlockHistory
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &h)
			})
			if err != nil {
				return fmt.Errorf("decode history: %w", err)
			}
			entries = append(entries, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PruneHistory deletes history entries older than cutoff across all IPs
func (s *Store) PruneHistory(cutoff time.Time) (int, error) {
	var toDelete [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(historyKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var h entity.BlockHistory
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &h)
			})
			if err != nil {
				continue
			}
			if h.CreatedAt.Before(cutoff) {
				toDelete = append(toDelete, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// --- whitelist ---

// PutWhitelist stores a whitelist entry keyed by CIDR
func (s *Store) PutWhitelist(entry *entity.WhitelistEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal whitelist entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(whitelistKeyPrefix+entry.CIDR), data)
	})
}

// DeleteWhitelist removes a whitelist entry by CIDR
func (s *Store) DeleteWhitelist(cidr string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(whitelistKeyPrefix + cidr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// --- reputation cache ---

// PutReputation stores a reputation record keyed by (source, ip) with a
// TTL, so restarts warm the cache without re-spending API quota and
// stale entries vanish on their own.
func (s *Store) PutReputation(rec *entity.ReputationRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reputation record: %w", err)
	}
	key := []byte(reputationKeyPrefix + rec.Source + ":" + rec.IP)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// ListReputation returns every unexpired reputation record
func (s *Store) ListReputation() ([]entity.ReputationRecord, error) {
	var records []entity.ReputationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(reputationKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec entity.ReputationRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode reputation record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListWhitelist returns every whitelist entry
func (s *Store) ListWhitelist() ([]entity.WhitelistEntry, error) {
	var entries []entity.WhitelistEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(whitelistKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry entity.WhitelistEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode whitelist entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
