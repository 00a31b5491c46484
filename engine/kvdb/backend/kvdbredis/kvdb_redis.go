package kvdbredis

import (
	"io"
	"sort"

	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/kvdb/types"
)

const (
	keyPrefix = "_KV_"
)

type redisKVDB struct {
	c redis.Conn
}

// OpenRedisKVDB opens Redis for KVDB backend
//
// url is a redis:// URL; dbindex selects the database.
func OpenRedisKVDB(url string, dbindex int) (kvdbtypes.KVDBEngine, error) {
	c, err := redis.DialURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis dial failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis kvdb initialize failed")
	}
	return &redisKVDB{c: c}, nil
}

func (db *redisKVDB) Get(key string) (val string, err error) {
	r, err := db.c.Do("GET", keyPrefix+key)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return redis.String(r, nil)
}

func (db *redisKVDB) Put(key string, val string) error {
	_, err := db.c.Do("SET", keyPrefix+key, val)
	return err
}

// Find scans every KVDB key; it is meant for administrative listing, not for hot paths
func (db *redisKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	var keys []string
	cursor := "0"
	for {
		r, err := redis.Values(db.c.Do("SCAN", cursor, "MATCH", keyPrefix+"*", "COUNT", 10000))
		if err != nil {
			return nil, err
		}
		cursor, err = redis.String(r[0], nil)
		if err != nil {
			return nil, err
		}
		batch, err := redis.Strings(r[1], nil)
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			key = key[len(keyPrefix):]
			if key >= beginKey && key < endKey {
				keys = append(keys, key)
			}
		}
		if cursor == "0" {
			break
		}
	}
	sort.Strings(keys)

	items := make([]kvdbtypes.KVItem, 0, len(keys))
	for _, key := range keys {
		val, err := db.Get(key)
		if err != nil {
			return nil, err
		}
		items = append(items, kvdbtypes.KVItem{Key: key, Val: val})
	}
	return &kvdbtypes.SliceIterator{Items: items}, nil
}

func (db *redisKVDB) Close() {
	db.c.Close()
}

func (db *redisKVDB) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF || db.c.Err() != nil
}
