package accounts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/internal/types"
)

// prefixAccount is the key prefix for account records.
// Key format: prefixAccount + pubkey (32 bytes)
var prefixAccount = []byte{0x01}

// accountKeySize is the prefix byte plus the pubkey.
const accountKeySize = 1 + types.PubkeySize

// BadgerStoreConfig contains configuration for BadgerStore.
type BadgerStoreConfig struct {
	// Path is the directory path for the database. Ignored when InMemory.
	Path string

	// InMemory keeps the database entirely in memory. This is the default
	// for test contexts; restart persistence is not a harness feature.
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger receives badger's internal log output and store errors.
	Logger zerolog.Logger
}

// DefaultBadgerStoreConfig returns an in-memory configuration.
func DefaultBadgerStoreConfig() BadgerStoreConfig {
	return BadgerStoreConfig{
		InMemory: true,
		Logger:   zerolog.Nop(),
	}
}

// BadgerStore is a badger-backed Store.
//
// It is useful for exercising programs against a large seeded state without
// holding every account in a Go map. The Store contract has no error
// returns, so internal badger failures are logged and kept; Err reports the
// first one.
type BadgerStore struct {
	db  *badger.DB
	log zerolog.Logger

	// mu serializes writers so count tracking stays consistent.
	mu    sync.RWMutex
	count int

	errMu    sync.Mutex
	firstErr error
}

// NewBadgerStore opens a badger database for use as an account store.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	logger := cfg.Logger.With().Str("component", "badger_store").Logger()

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{log: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{db: db, log: logger}
	if err := s.loadCount(); err != nil {
		db.Close()
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	return s, nil
}

// loadCount counts existing account keys.
func (s *BadgerStore) loadCount() error {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	s.count = n
	return err
}

// accountKey returns the badger key for an account.
func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, accountKeySize)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

// record keeps the first internal error and logs every one.
func (s *BadgerStore) record(op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("badger store operation failed")

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.firstErr == nil {
		s.firstErr = fmt.Errorf("%s: %w", op, err)
	}
}

// Err returns the first internal error encountered, if any.
func (s *BadgerStore) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

// Get retrieves a copy of the account at addr.
func (s *BadgerStore) Get(addr types.Pubkey) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok, err := s.getLocked(addr)
	if err != nil {
		s.record("get", err)
		return Account{}, false
	}
	return acc, ok
}

func (s *BadgerStore) getLocked(addr types.Pubkey) (Account, bool, error) {
	var (
		acc   Account
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(addr))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := DeserializeAccount(val)
			if err != nil {
				return err
			}
			acc, found = decoded, true
			return nil
		})
	})
	return acc, found, err
}

// Put stores the account at addr.
func (s *BadgerStore) Put(addr types.Pubkey, account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists, err := s.getLocked(addr)
	if err != nil {
		s.record("put", err)
		return
	}

	data := account.Serialize()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(addr), data)
	})
	if err != nil {
		s.record("put", err)
		return
	}
	if !exists {
		s.count++
	}
}

// Balance returns the lamports held at addr.
func (s *BadgerStore) Balance(addr types.Pubkey) (uint64, bool) {
	acc, ok := s.Get(addr)
	if !ok {
		return 0, false
	}
	return acc.Lamports, true
}

// Len returns the number of accounts.
func (s *BadgerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Range iterates over all accounts in ascending pubkey order.
func (s *BadgerStore) Range(fn func(addr types.Pubkey, account Account) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.rangeLocked(fn); err != nil {
		s.record("range", err)
	}
}

// errStopRange ends iteration early without reporting a failure.
var errStopRange = errors.New("stop range")

func (s *BadgerStore) rangeLocked(fn func(addr types.Pubkey, account Account) bool) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != accountKeySize {
				continue
			}
			var addr types.Pubkey
			copy(addr[:], key[1:])

			var acc Account
			err := item.Value(func(val []byte) error {
				decoded, err := DeserializeAccount(val)
				acc = decoded
				return err
			})
			if err != nil {
				return err
			}
			if !fn(addr, acc) {
				return errStopRange
			}
		}
		return nil
	})
	if errors.Is(err, errStopRange) {
		return nil
	}
	return err
}

// Snapshot reads every account into an in-memory snapshot.
func (s *BadgerStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make(map[types.Pubkey]Account, s.count)
	err := s.rangeLocked(func(addr types.Pubkey, account Account) bool {
		accounts[addr] = account
		return true
	})
	if err != nil {
		s.record("snapshot", err)
	}
	return &Snapshot{accounts: accounts}
}

// Restore rewrites the store to match the snapshot in one write batch:
// records absent from the snapshot are deleted, the rest are overwritten.
func (s *BadgerStore) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) != accountKeySize {
				continue
			}
			var addr types.Pubkey
			copy(addr[:], key[1:])
			if _, ok := snap.accounts[addr]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		s.record("restore: scan", err)
		return
	}

	wb := s.db.NewWriteBatch()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			s.record("restore: delete", err)
			return
		}
	}
	for addr, acc := range snap.accounts {
		if err := wb.Set(accountKey(addr), acc.Serialize()); err != nil {
			wb.Cancel()
			s.record("restore: set", err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		s.record("restore: flush", err)
		return
	}
	s.count = len(snap.accounts)
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}

// Verify that BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)
