package kvdbmemory

import (
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/sectorworld/engine/kvdb/types"
)

func collect(t *testing.T, it kvdbtypes.Iterator) []kvdbtypes.KVItem {
	var items []kvdbtypes.KVItem
	for {
		item, err := it.Next()
		if err == io.EOF {
			return items
		}
		assert.Equal(t, nil, err)
		items = append(items, item)
	}
}

func TestFindRange(t *testing.T) {
	db, err := OpenMemoryKVDB()
	assert.Equal(t, nil, err)
	defer db.Close()

	for _, k := range []string{"sector/c", "sector/a", "player/x", "sector/b", "sector/d"} {
		assert.Equal(t, nil, db.Put(k, k))
	}
	assert.Equal(t, nil, db.Put("sector/b", "B"))

	it, err := db.Find("sector/a", "sector/d")
	assert.Equal(t, nil, err)
	assert.Equal(t, []kvdbtypes.KVItem{
		{Key: "sector/a", Val: "sector/a"},
		{Key: "sector/b", Val: "B"},
		{Key: "sector/c", Val: "sector/c"},
	}, collect(t, it))

	it, err = db.Find("sector/d", "sector/a")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(collect(t, it)))
}

func TestCloseDropsContent(t *testing.T) {
	db, _ := OpenMemoryKVDB()
	assert.Equal(t, nil, db.Put("k", "v"))
	db.Close()
	val, err := db.Get("k")
	assert.Equal(t, nil, err)
	assert.Equal(t, "", val)
}
