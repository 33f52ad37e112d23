package evaluator

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr/vm"
)

// DefaultCacheSize bounds the compiled program cache.
const DefaultCacheSize = 256

// programCache is a concurrency-safe LRU cache of compiled programs, keyed
// by expression source.
type programCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	hits    int64
	misses  int64
}

type cacheEntry struct {
	expression string
	program    *vm.Program
}

func newProgramCache(maxSize int) *programCache {
	if maxSize < 1 {
		maxSize = DefaultCacheSize
	}
	return &programCache{
		items:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (c *programCache) get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[expression]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).program, true
}

func (c *programCache) put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[expression]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).program = program
		return
	}
	c.items[expression] = c.lru.PushFront(&cacheEntry{expression: expression, program: program})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		delete(c.items, oldest.Value.(*cacheEntry).expression)
		c.lru.Remove(oldest)
	}
}

// stats returns hits, misses and the current size.
func (c *programCache) stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.lru.Len()
}
