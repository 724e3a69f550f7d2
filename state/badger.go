package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/dgraph-io/badger/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

var _ ReadWriteStore = (*BadgerStore)(nil)

// DefaultValidatorCacheSize is the number of decoded validator sets
// kept in memory.
const DefaultValidatorCacheSize = 64

var (
	keyLastHeight = []byte("meta/last_height")
	keyEpochs     = []byte("meta/epochs")
	keyTxQueue    = []byte("meta/txqueue")
	prefixVals    = []byte("validators/")
	prefixBalance = []byte("balance/")
)

func validatorsKey(epoch uint64) []byte {
	k := make([]byte, len(prefixVals)+8)
	copy(k, prefixVals)
	binary.BigEndian.PutUint64(k[len(prefixVals):], epoch)
	return k
}

func balanceKeyBytes(token, owner types.Address) []byte {
	k := make([]byte, 0, len(prefixBalance)+len(token)+len(owner))
	k = append(k, prefixBalance...)
	k = append(k, token[:]...)
	return append(k, owner[:]...)
}

// Stored values.
type (
	heightRecord struct {
		Height uint64 `cramberry:"1"`
	}
	epochsRecord struct {
		Starts []EpochStart `cramberry:"1"`
	}
	validatorsRecord struct {
		Validators []types.Validator `cramberry:"1"`
	}
	balanceRecord struct {
		Amount uint64 `cramberry:"1"`
	}
	queueRecord struct {
		Txs []transaction.WrapperTx `cramberry:"1"`
	}
)

// cachedValidators is a decoded validator set at a badger version.
type cachedValidators struct {
	version uint64
	vals    []types.Validator
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Directory of the database. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Size of the validator-set cache. Zero uses DefaultValidatorCacheSize.
	CacheSize int
	Logger    *zap.Logger
}

// BadgerStore keeps committed state in a badger database. Each
// snapshot is a read-only badger transaction.
type BadgerStore struct {
	db     *badger.DB
	cache  *lru.ARCCache
	closed atomic.Bool
}

// OpenBadger opens (or creates) a badger-backed store.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bopts := badger.DefaultOptions(opts.Path).WithLogger(badgerLogger{logger.Sugar()})
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger.Sugar()})
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("state: open badger: %w", err)
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultValidatorCacheSize
	}
	cache, err := lru.NewARC(size)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: validator cache: %w", err)
	}
	return &BadgerStore{db: db, cache: cache}, nil
}

func (b *BadgerStore) Snapshot() (Snapshot, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return &badgerSnapshot{store: b, txn: b.db.NewTransaction(false)}, nil
}

func (b *BadgerStore) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

func (b *BadgerStore) put(key []byte, v any) error {
	data, err := cramberry.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("state: write %s: %w", key, err)
	}
	return nil
}

func (b *BadgerStore) SetLastHeight(height uint64) error {
	return b.put(keyLastHeight, heightRecord{Height: height})
}

func (b *BadgerStore) SetEpoch(startHeight, epoch uint64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var rec epochsRecord
		if _, err := get(txn, keyEpochs, &rec); err != nil {
			return err
		}
		rec.Starts = insertEpoch(rec.Starts, EpochStart{Height: startHeight, Epoch: epoch})
		data, err := cramberry.Marshal(rec)
		if err != nil {
			return fmt.Errorf("state: encode epochs: %w", err)
		}
		return txn.Set(keyEpochs, data)
	})
}

func (b *BadgerStore) SetValidators(epoch uint64, validators []types.Validator) error {
	return b.put(validatorsKey(epoch), validatorsRecord{Validators: validators})
}

func (b *BadgerStore) SetBalance(token, owner types.Address, amount uint64) error {
	return b.put(balanceKeyBytes(token, owner), balanceRecord{Amount: amount})
}

func (b *BadgerStore) SetTxQueue(queue []transaction.WrapperTx) error {
	return b.put(keyTxQueue, queueRecord{Txs: queue})
}

// get decodes key into v. It reports false, with v untouched, if the
// key is absent.
func get(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: read %s: %w", key, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return false, fmt.Errorf("state: read %s: %w", key, err)
	}
	if err := cramberry.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

type badgerSnapshot struct {
	store *BadgerStore
	txn   *badger.Txn
}

func (s *badgerSnapshot) LastHeight() (uint64, error) {
	var rec heightRecord
	if _, err := get(s.txn, keyLastHeight, &rec); err != nil {
		return 0, err
	}
	return rec.Height, nil
}

func (s *badgerSnapshot) Epoch(height uint64) (uint64, error) {
	var rec epochsRecord
	if _, err := get(s.txn, keyEpochs, &rec); err != nil {
		return 0, err
	}
	e, ok := epochAt(rec.Starts, height)
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrUnknownEpoch, height)
	}
	return e, nil
}

// validators reads the epoch's set, decoding it only when the cached
// copy is from a different version of the key.
func (s *badgerSnapshot) validators(epoch uint64) ([]types.Validator, error) {
	key := validatorsKey(epoch)
	item, err := s.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", key, err)
	}
	if c, ok := s.store.cache.Get(epoch); ok {
		if cv := c.(cachedValidators); cv.version == item.Version() {
			return cv.vals, nil
		}
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", key, err)
	}
	var rec validatorsRecord
	if err := cramberry.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("state: decode %s: %w", key, err)
	}
	s.store.cache.Add(epoch, cachedValidators{version: item.Version(), vals: rec.Validators})
	return rec.Validators, nil
}

func (s *badgerSnapshot) TotalVotingPower(epoch uint64) (uint64, error) {
	vals, err := s.validators(epoch)
	if err != nil {
		return 0, err
	}
	return totalPower(vals)
}

func (s *badgerSnapshot) Validator(epoch uint64, addr types.ValidatorAddress) (types.Validator, bool, error) {
	vals, err := s.validators(epoch)
	if err != nil {
		return types.Validator{}, false, err
	}
	for _, v := range vals {
		if v.Address == addr {
			return v, true, nil
		}
	}
	return types.Validator{}, false, nil
}

func (s *badgerSnapshot) Balance(token, owner types.Address) (uint64, error) {
	var rec balanceRecord
	if _, err := get(s.txn, balanceKeyBytes(token, owner), &rec); err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

func (s *badgerSnapshot) TxQueue() ([]transaction.WrapperTx, error) {
	var rec queueRecord
	if _, err := get(s.txn, keyTxQueue, &rec); err != nil {
		return nil, err
	}
	return rec.Txs, nil
}

func (s *badgerSnapshot) Discard() {
	s.txn.Discard()
}

// badgerLogger routes badger's logs to zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
