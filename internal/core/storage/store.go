// Package storage 提供基于 BadgerDB 的键值存储
//
// Store 在一个 badger.DB 之上提供命名空间隔离：
//
//	db, err := storage.Open("/data/hosts")
//	hosts := db.Namespace([]byte("hosts/"))
//	_ = hosts.Put([]byte("10.0.0.1:7700"), nil)
package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dep2p/go-p2pnet/pkg/lib/log"
	"github.com/dgraph-io/badger/v4"
)

var logger = log.Logger("core/storage")

// 存储错误定义
var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")

	// ErrEmptyKey 空键
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("storage: closed")
)

// Store BadgerDB 存储
type Store struct {
	db     *badger.DB
	prefix []byte
	closed *atomic.Bool
}

// Open 打开（或创建）目录 path 下的存储
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: empty path")
	}
	return open(badger.DefaultOptions(path))
}

// OpenInMemory 打开纯内存存储（测试和无持久化场景）
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(badgerLogger{}))
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return &Store{db: db, closed: new(atomic.Bool)}, nil
}

// Namespace 返回带前缀的视图，与原 Store 共享底层数据库
func (s *Store) Namespace(prefix []byte) *Store {
	return &Store{
		db:     s.db,
		prefix: s.prefixKey(prefix),
		closed: s.closed,
	}
}

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.prefixKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, convertError(err)
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	return convertError(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.prefixKey(key), value)
	}))
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	return convertError(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.prefixKey(key))
	}))
}

// Iterate 按键序遍历命名空间内的所有键值对
//
// 传给 fn 的 key 已去掉命名空间前缀；fn 返回错误时停止遍历并返回该错误。
func (s *Store) Iterate(fn func(key, value []byte) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return convertError(s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := item.KeyCopy(nil)[len(s.prefix):]
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Close 关闭底层数据库
//
// 对任一命名空间视图调用都会关闭整个数据库。
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check(key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

func (s *Store) prefixKey(key []byte) []byte {
	if len(s.prefix) == 0 {
		return key
	}
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return ErrEmptyKey
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	default:
		return err
	}
}

// badgerLogger 将 badger 日志转到组件 logger
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}
