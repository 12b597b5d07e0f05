// Package hosts 维护已知节点地址簿
//
// 地址簿是容量有限的 LRU：新地址或再次出现的地址成为最近使用，
// 容量满时淘汰最久未出现的地址。可选地持久化到 storage.Store。
package hosts

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/multiformats/go-varint"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/storage"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("net/hosts")

var storePrefix = []byte("hosts/")

// Hosts 地址簿
type Hosts struct {
	cache *lru.Cache[string, time.Time]
	store *storage.Store
}

// New 创建纯内存地址簿
func New(capacity int) (*Hosts, error) {
	cache, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("hosts: %w", err)
	}
	return &Hosts{cache: cache}, nil
}

// Open 创建地址簿并从 store 加载已保存的地址
//
// store 为 nil 时等同于 New(settings.HostsCapacity)。
func Open(settings *config.Settings, store *storage.Store) (*Hosts, error) {
	h, err := New(settings.HostsCapacity)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return h, nil
	}
	h.store = store.Namespace(storePrefix)

	type entry struct {
		addr string
		seen time.Time
	}
	var entries []entry
	err = h.store.Iterate(func(key, value []byte) error {
		nanos, _, err := varint.FromUvarint(value)
		if err != nil {
			logger.Warn("skip corrupt host entry", "addr", string(key), "error", err)
			return nil
		}
		entries = append(entries, entry{addr: string(key), seen: time.Unix(0, int64(nanos))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hosts: load: %w", err)
	}

	// 按出现时间从旧到新加入，最新的成为最近使用
	slices.SortFunc(entries, func(a, b entry) int { return a.seen.Compare(b.seen) })
	for _, e := range entries {
		h.cache.Add(e.addr, e.seen)
	}
	logger.Debug("hosts loaded", "count", h.cache.Len())
	return h, nil
}

// Store 记录地址，返回其中新地址的数量
//
// 已知地址刷新为最近使用；格式无效的地址被忽略。
func (h *Hosts) Store(addrs ...string) int {
	now := time.Now()
	added := 0
	for _, addr := range addrs {
		if err := config.ValidateAddr(addr); err != nil {
			logger.Debug("skip invalid host", "addr", addr, "error", err)
			continue
		}
		if known, _ := h.cache.ContainsOrAdd(addr, now); known {
			h.cache.Add(addr, now)
			continue
		}
		added++
	}
	return added
}

// Random 返回至多 n 个随机地址
func (h *Hosts) Random(n int) []string {
	if n <= 0 {
		return nil
	}
	addrs := h.cache.Keys()
	rand.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })
	if len(addrs) > n {
		addrs = addrs[:n]
	}
	return addrs
}

// All 返回全部地址，从最久未出现到最近出现
func (h *Hosts) All() []string {
	return h.cache.Keys()
}

// Len 返回地址数量
func (h *Hosts) Len() int {
	return h.cache.Len()
}

// Contains 报告地址是否已知
func (h *Hosts) Contains(addr string) bool {
	return h.cache.Contains(addr)
}

// Remove 删除地址
func (h *Hosts) Remove(addr string) {
	h.cache.Remove(addr)
}

// Flush 将当前地址簿写入 store
//
// store 中已被淘汰或删除的地址随之删除。未配置 store 时为空操作。
func (h *Hosts) Flush() error {
	if h.store == nil {
		return nil
	}

	var stale [][]byte
	err := h.store.Iterate(func(key, _ []byte) error {
		if !h.cache.Contains(string(key)) {
			stale = append(stale, slices.Clone(key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hosts: flush: %w", err)
	}

	var errs error
	for _, key := range stale {
		errs = multierr.Append(errs, h.store.Delete(key))
	}
	for _, addr := range h.cache.Keys() {
		seen, ok := h.cache.Peek(addr)
		if !ok {
			continue
		}
		errs = multierr.Append(errs, h.store.Put([]byte(addr), varint.ToUvarint(uint64(seen.UnixNano()))))
	}
	if errs != nil {
		return fmt.Errorf("hosts: flush: %w", errs)
	}
	logger.Debug("hosts flushed", "count", h.cache.Len(), "removed", len(stale))
	return nil
}
