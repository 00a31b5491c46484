package kvdb

import (
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/sectorworld/engine/config"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbfilesystem"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbmemory"
	"github.com/xiaonanln/sectorworld/engine/kvdb/backend/kvdbsql"
	. "github.com/xiaonanln/sectorworld/engine/kvdb/types"
)

type _Fataler interface {
	Fatal(args ...interface{})
}

func openTestMemoryKVDB(f _Fataler) KVDBEngine {
	kvdb, err := kvdbmemory.OpenMemoryKVDB()
	if err != nil {
		f.Fatal(err)
	}
	return kvdb
}

func openTestFilesystemKVDB(t *testing.T) KVDBEngine {
	kvdb, err := kvdbfilesystem.OpenDirectory(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatal(err)
	}
	return kvdb
}

func openTestSQLiteKVDB(t *testing.T) KVDBEngine {
	kvdb, err := kvdbsql.OpenSQLiteKVDB(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	return kvdb
}

func TestMemoryBackend(t *testing.T) {
	kvdb := openTestMemoryKVDB(t)
	defer kvdb.Close()
	testKVDBBackendSet(t, kvdb)
	testBackendFind(t, kvdb)
}

func TestFilesystemBackend(t *testing.T) {
	kvdb := openTestFilesystemKVDB(t)
	defer kvdb.Close()
	testKVDBBackendSet(t, kvdb)
	testBackendFind(t, kvdb)
}

func TestSQLiteBackend(t *testing.T) {
	kvdb := openTestSQLiteKVDB(t)
	defer kvdb.Close()
	testKVDBBackendSet(t, kvdb)
	testBackendFind(t, kvdb)
}

func testKVDBBackendSet(t *testing.T, kvdb KVDBEngine) {
	val, err := kvdb.Get("__key_not_exists__")
	if err != nil || val != "" {
		t.Fatal(err)
	}

	for i := 0; i < 100; i++ {
		key := strconv.Itoa(rand.Intn(10000))
		val := strconv.Itoa(rand.Intn(10000))
		err = kvdb.Put(key, val)
		if err != nil {
			t.Fatal(err)
		}
		var verifyVal string
		verifyVal, err = kvdb.Get(key)
		if err != nil {
			t.Fatal(err)
		}

		if verifyVal != val {
			t.Errorf("%s != %s", val, verifyVal)
		}
	}

	// keys with path separators and binary-ish values
	assert.Equal(t, nil, kvdb.Put("sector/a/b", "x\x00y"))
	val, err = kvdb.Get("sector/a/b")
	assert.Equal(t, nil, err)
	assert.Equal(t, "x\x00y", val)
}

func testBackendFind(t *testing.T, kvdb KVDBEngine) {
	var keys []string
	for i := 1; i <= 10; i++ {
		keys = append(keys, fmt.Sprintf("find/%03d", i))
	}
	for _, key := range keys {
		assert.Equal(t, nil, kvdb.Put(key, key))
	}
	beginKey, endKey := keys[2], keys[7]

	it, err := kvdb.Find(beginKey, endKey)
	if err != nil {
		t.Fatal(err)
	}

	oldKey := ""
	var found []string
	for {
		item, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if item.Key <= oldKey { // the keys should be increasing
			t.Errorf("old key is %s, new key is %s, should be increasing", oldKey, item.Key)
		}
		assert.Equal(t, item.Key, item.Val)
		oldKey = item.Key
		found = append(found, item.Key)
	}
	assert.Equal(t, keys[2:7], found)
}

func TestDB(t *testing.T) {
	db, err := Open(&config.StorageConfig{Type: "filesystem", Directory: t.TempDir()})
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, db.Put("sector/jita", "1"))
	assert.Equal(t, nil, db.Put("sector/amarr", "2"))
	assert.Equal(t, nil, db.Put("player/alice", "3"))

	val, err := db.Get("sector/jita")
	assert.Equal(t, nil, err)
	assert.Equal(t, "1", val)

	items, err := db.GetRange("sector/", PrefixEnd("sector/"))
	assert.Equal(t, nil, err)
	assert.Equal(t, []KVItem{{Key: "sector/amarr", Val: "2"}, {Key: "sector/jita", Val: "1"}}, items)

	db.Close()
	_, err = db.Get("sector/jita")
	assert.Equal(t, ErrClosed, err)
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(&config.StorageConfig{Type: "floppy"})
	assert.NotEqual(t, nil, err)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "sector0", PrefixEnd("sector/"))
	assert.Equal(t, "b", PrefixEnd("a\xff"))
	assert.T(t, NextLargerKey("a") > "a")
	assert.T(t, NextLargerKey("a") < "a0")
}

func BenchmarkMemoryBackendGetSet(b *testing.B) {
	kvdb := openTestMemoryKVDB(b)
	key := "testkey"

	for i := 0; i < b.N; i++ {
		val := strconv.Itoa(rand.Intn(1000))
		kvdb.Put(key, val)
		getval, err := kvdb.Get(key)
		if err != nil {
			b.Error(err)
		}
		if getval != val {
			b.Errorf("put %s but get %s", val, getval)
		}
	}
}
