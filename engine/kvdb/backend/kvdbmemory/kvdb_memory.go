package kvdbmemory

import (
	"sync"

	"github.com/petar/GoLLRB/llrb"
	"github.com/xiaonanln/sectorworld/engine/kvdb/types"
)

type memoryKVDB struct {
	lock  sync.RWMutex
	btree *llrb.LLRB
}

type kvItem struct {
	key string
	val string
}

func (it *kvItem) Less(_other llrb.Item) bool {
	return it.key < _other.(*kvItem).key
}

// OpenMemoryKVDB creates an empty in-memory KVDB; its content is lost on Close
func OpenMemoryKVDB() (kvdbtypes.KVDBEngine, error) {
	return &memoryKVDB{btree: llrb.New()}, nil
}

func (db *memoryKVDB) Get(key string) (string, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	item := db.btree.Get(&kvItem{key: key})
	if item == nil {
		return "", nil
	}
	return item.(*kvItem).val, nil
}

func (db *memoryKVDB) Put(key string, val string) error {
	db.lock.Lock()
	db.btree.ReplaceOrInsert(&kvItem{key: key, val: val})
	db.lock.Unlock()
	return nil
}

func (db *memoryKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	var items []kvdbtypes.KVItem
	db.btree.AscendRange(&kvItem{key: beginKey}, &kvItem{key: endKey}, func(_item llrb.Item) bool {
		item := _item.(*kvItem)
		items = append(items, kvdbtypes.KVItem{Key: item.key, Val: item.val})
		return true
	})
	return &kvdbtypes.SliceIterator{Items: items}, nil
}

func (db *memoryKVDB) Close() {
	db.lock.Lock()
	db.btree = llrb.New()
	db.lock.Unlock()
}

func (db *memoryKVDB) IsConnectionError(err error) bool {
	return false
}
