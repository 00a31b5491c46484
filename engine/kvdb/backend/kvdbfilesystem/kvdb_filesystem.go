package kvdbfilesystem

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/kvdb/types"
)

const filePrefix = "kv$"

type filesystemKVDB struct {
	directory string
}

// OpenDirectory uses one file per key under directory, creating it if needed
func OpenDirectory(directory string) (kvdbtypes.KVDBEngine, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s", directory)
	}
	return &filesystemKVDB{directory: directory}, nil
}

func getFileName(key string) string {
	return filePrefix + base64.URLEncoding.EncodeToString([]byte(key))
}

func (db *filesystemKVDB) getFilePath(key string) string {
	return filepath.Join(db.directory, getFileName(key))
}

func (db *filesystemKVDB) Get(key string) (string, error) {
	data, err := os.ReadFile(db.getFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// Put writes a temporary file and renames it, so readers never see a partial value
func (db *filesystemKVDB) Put(key string, val string) error {
	fpath := db.getFilePath(key)
	if consts.DEBUG_SAVE_LOAD {
		gwlog.Debugf("Saving to file %s: %d bytes", fpath, len(val))
	}
	tmp := fpath + ".tmp"
	if err := os.WriteFile(tmp, []byte(val), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, fpath)
}

func (db *filesystemKVDB) Find(beginKey string, endKey string) (kvdbtypes.Iterator, error) {
	files, err := filepath.Glob(filepath.Join(db.directory, filePrefix+"*"))
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, fpath := range files {
		_, fn := filepath.Split(fpath)
		if strings.HasSuffix(fn, ".tmp") {
			continue
		}
		keyBytes, err := base64.URLEncoding.DecodeString(fn[len(filePrefix):])
		if err != nil {
			gwlog.TraceError("fail to parse file %s", fpath)
			continue
		}
		if key := string(keyBytes); key >= beginKey && key < endKey {
			keys = append(keys, key)
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

func (db *filesystemKVDB) Close() {
	// need to do nothing
}

func (db *filesystemKVDB) IsConnectionError(err error) bool {
	return false
}
