// Package kvdb stores player and sector records in a pluggable key-value engine.
package kvdb

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/config"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbfilesystem"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbmemory"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbmongo"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbredis"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbrediscluster"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbsql"
	. "github.com/xiaonanln/sectorworld/engine/kvdb/types"
	"github.com/xiaonanln/sectorworld/engine/opmon"
)

// ErrClosed is returned by operations on a closed DB
var ErrClosed = errors.New("kvdb closed")

// DB serializes access to one KVDB engine and reopens it after connection errors
//
// All methods block and are meant to run on worker pool goroutines.
type DB struct {
	lock   sync.Mutex
	cfg    config.StorageConfig
	engine KVDBEngine
	closed bool
}

// Open opens the engine selected by cfg.Type
func Open(cfg *config.StorageConfig) (*DB, error) {
	db := &DB{cfg: *cfg}
	gwlog.Infof("KVDB initializing, config:\n%s", config.DumpPretty(cfg))
	if err := db.assureEngineReady(); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenEngine wraps an engine that is already open
func OpenEngine(engine KVDBEngine) *DB {
	return &DB{engine: engine}
}

func openEngine(cfg *config.StorageConfig) (KVDBEngine, error) {
	switch cfg.Type {
	case "filesystem":
		return kvdbfilesystem.OpenDirectory(cfg.Directory)
	case "memory":
		return kvdbmemory.OpenMemoryKVDB()
	case "mongodb":
		return kvdbmongo.OpenMongoKVDB(cfg.Url, cfg.DB, cfg.Collection)
	case "redis":
		dbindex, err := strconv.Atoi(cfg.DB)
		if err != nil {
			return nil, errors.Wrap(err, "redis db must be integer")
		}
		return kvdbredis.OpenRedisKVDB(cfg.Url, dbindex)
	case "redis_cluster":
		return kvdbrediscluster.OpenRedisKVDB(cfg.StartNodes)
	case "sqlite":
		return kvdbsql.OpenSQLiteKVDB(cfg.Url)
	default:
		return nil, errors.Errorf("KVDB type %s is not implemented", cfg.Type)
	}
}

func (db *DB) assureEngineReady() (err error) {
	if db.closed {
		return ErrClosed
	}
	if db.engine != nil { // connection is valid
		return nil
	}
	if db.cfg.Type == "" {
		return errors.New("KVDB engine lost and cannot be reopened")
	}
	db.engine, err = openEngine(&db.cfg)
	if err != nil {
		return errors.Wrapf(err, "open %s kvdb", db.cfg.Type)
	}
	return nil
}

// checkError drops the engine after a connection error so the next call reconnects
func (db *DB) checkError(err error) {
	if err != nil && db.engine != nil && db.engine.IsConnectionError(err) {
		gwlog.Warnf("KVDB connection error, will reconnect: %s", err)
		db.engine.Close()
		db.engine = nil
	}
}

// Get returns the value of key, or "" if it is absent
func (db *DB) Get(key string) (string, error) {
	op := opmon.StartOperation("kvdb.get")
	defer op.Finish(time.Millisecond * 100)

	db.lock.Lock()
	defer db.lock.Unlock()
	if err := db.assureEngineReady(); err != nil {
		return "", err
	}
	val, err := db.engine.Get(key)
	db.checkError(err)
	return val, errors.Wrapf(err, "kvdb get %s", key)
}

// Put stores val under key
func (db *DB) Put(key string, val string) error {
	op := opmon.StartOperation("kvdb.put")
	defer op.Finish(time.Millisecond * 100)

	db.lock.Lock()
	defer db.lock.Unlock()
	if err := db.assureEngineReady(); err != nil {
		return err
	}
	err := db.engine.Put(key, val)
	db.checkError(err)
	return errors.Wrapf(err, "kvdb put %s", key)
}

// GetRange returns the items with beginKey <= key < endKey, ordered by key
func (db *DB) GetRange(beginKey string, endKey string) ([]KVItem, error) {
	op := opmon.StartOperation("kvdb.getRange")
	defer op.Finish(time.Millisecond * 100)

	db.lock.Lock()
	defer db.lock.Unlock()
	if err := db.assureEngineReady(); err != nil {
		return nil, err
	}
	it, err := db.engine.Find(beginKey, endKey)
	if err != nil {
		db.checkError(err)
		return nil, errors.Wrap(err, "kvdb find")
	}

	var items []KVItem
	for {
		item, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			db.checkError(err)
			return nil, errors.Wrap(err, "kvdb find")
		}
		items = append(items, item)
	}
	return items, nil
}

// NextLargerKey returns the smallest key that is larger than key
func NextLargerKey(key string) string {
	return key + "\x00" // the next string that is larger than key, but smaller than any other keys > key
}

// PrefixEnd returns the smallest key larger than every key starting with prefix
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return "\xff\xff\xff\xff"
}

// Close closes the engine; later calls fail with ErrClosed
func (db *DB) Close() {
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.closed {
		return
	}
	db.closed = true
	if db.engine != nil {
		db.engine.Close()
		db.engine = nil
	}
}
