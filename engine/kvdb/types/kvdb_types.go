package kvdbtypes

import "io"

// KVDBEngine defines the interface of a KVDB engine implementation
//
// Get returns "" with a nil error for absent keys. Engines are not required to be safe for
// concurrent use.
type KVDBEngine interface {
	Get(key string) (val string, err error)
	Put(key string, val string) (err error)
	Find(beginKey string, endKey string) (Iterator, error)
	Close()
	IsConnectionError(err error) bool
}

// Iterator is the interface for iterators for KVDB
//
// Next should returns the next item with error=nil whenever has next item
// otherwise returns KVItem{}, io.EOF
// When failed, returns KVItem{}, error
type Iterator interface {
	Next() (KVItem, error)
}

// KVItem is the type of KVDB item
type KVItem struct {
	Key string
	Val string
}

// SliceIterator iterates over items that are already loaded, in order
type SliceIterator struct {
	Items []KVItem
}

// Next returns the next item or io.EOF
func (it *SliceIterator) Next() (KVItem, error) {
	if len(it.Items) == 0 {
		return KVItem{}, io.EOF
	}
	item := it.Items[0]
	it.Items = it.Items[1:]
	return item, nil
}
