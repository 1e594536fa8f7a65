package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置 LRU 缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大条目数，0 表示不限制。
	Capacity int
	// MaxWeight 是所有条目权重之和的上限，0 表示不限制。
	MaxWeight int
	// TTL 是条目的存活时间，0 表示永不过期。
	TTL time.Duration
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	weight    int
	expiresAt time.Time
}

// LRUCache 是一个泛型、线程安全的 LRU 缓存，同时支持按条目数和按权重淘汰。
type LRUCache[K comparable, V any] struct {
	config CacheConfig
	ll     *list.List
	items  map[K]*list.Element
	weight int
	now    func() time.Time
	mu     sync.Mutex
}

// NewWithConfig 使用指定的配置创建一个 LRU 缓存实例。
func NewWithConfig[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, fmt.Errorf("lru cache needs a positive Capacity or MaxWeight")
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		items:  make(map[K]*list.Element),
		now:    time.Now,
	}, nil
}

// Get 返回键对应的值，过期的条目会被顺带移除。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.remove(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Put 添加或更新一个条目。按条目数淘汰时 weight 传 1 即可。
// 单个条目的权重超过 MaxWeight 时不会被缓存。
func (c *LRUCache[K, V]) Put(key K, value V, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxWeight > 0 && weight > c.config.MaxWeight {
		if el, ok := c.items[key]; ok {
			c.remove(el)
		}
		return
	}

	var expiresAt time.Time
	if c.config.TTL > 0 {
		expiresAt = c.now().Add(c.config.TTL)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		c.weight += weight - e.weight
		e.value, e.weight, e.expiresAt = value, weight, expiresAt
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, weight: weight, expiresAt: expiresAt})
		c.weight += weight
	}

	for c.overLimit() {
		c.remove(c.ll.Back())
	}
}

// Purge 清空缓存。
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[K]*list.Element)
	c.weight = 0
}

// Len 返回当前条目数量。
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Weight 返回当前所有条目的总权重。
func (c *LRUCache[K, V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.now().After(e.expiresAt)
}

func (c *LRUCache[K, V]) overLimit() bool {
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.weight > c.config.MaxWeight
}

// 调用方需持有锁。
func (c *LRUCache[K, V]) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.ll.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.weight -= e.weight
}
