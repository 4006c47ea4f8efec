// Package filecache provides a shared, refcounted mmap cache keyed by
// resolved file path, so concurrent keep-alive connections serving the
// same popular static file share one mapping instead of mmapping it once
// per connection.
package filecache

import (
	"fmt"
	"hash/fnv"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Mapping is a reference-counted mmap'd file. Callers obtain one via
// Cache.Open and must call Release when done; the mapping is munmapped
// when the last reference is released.
type Mapping struct {
	cache *Cache
	path  string
	data  []byte
	size  int64

	mu   sync.Mutex
	refs int
}

// Bytes returns the mapped file content. Valid only while the caller holds
// a reference (i.e. between Open and Release).
func (m *Mapping) Bytes() []byte { return m.data }

// Size returns the mapped file's length in bytes.
func (m *Mapping) Size() int64 { return m.size }

// Release decrements the mapping's refcount, unmapping and evicting it from
// the cache when it reaches zero.
func (m *Mapping) Release() {
	m.mu.Lock()
	m.refs--
	last := m.refs == 0
	m.mu.Unlock()
	if last {
		m.cache.evict(m)
	}
}

func (m *Mapping) addRef() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

// Cache maps resolved file paths to their current Mapping, sharding its
// lock the way a byte-range cache shards by offset: each path hashes to one
// of numShards independent mutexes, so unrelated files never contend.
type Cache struct {
	shards []shard
	mask   uint32
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Mapping
}

// New creates a Cache with a shard count rounded up to a power of two, near
// runtime.NumCPU()*4 by default.
func New() *Cache {
	n := nextPow2(runtime.NumCPU() * 4)
	c := &Cache{shards: make([]shard, n), mask: uint32(n - 1)}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*Mapping)
	}
	return c
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Cache) shardFor(path string) *shard {
	h := fnv.New32a()
	h.Write([]byte(path))
	return &c.shards[h.Sum32()&c.mask]
}

// Open returns a reference to path's mapping, mmapping the file if it is
// not already cached. The caller must call Release exactly once.
func (c *Cache) Open(path string) (*Mapping, error) {
	sh := c.shardFor(path)

	sh.mu.RLock()
	if m, ok := sh.entries[path]; ok {
		m.addRef()
		sh.mu.RUnlock()
		return m, nil
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if m, ok := sh.entries[path]; ok {
		m.addRef()
		return m, nil
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("filecache: refusing to mmap empty file %s", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	m := &Mapping{cache: c, path: path, data: data, size: size, refs: 1}
	sh.entries[path] = m
	return m, nil
}

func (c *Cache) evict(m *Mapping) {
	sh := c.shardFor(m.path)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m.mu.Lock()
	stillZero := m.refs == 0
	m.mu.Unlock()
	if !stillZero {
		// Someone re-acquired a reference between Release's decrement and
		// this eviction attempt; leave the entry in place.
		return
	}
	if cur, ok := sh.entries[m.path]; ok && cur == m {
		delete(sh.entries, m.path)
		unix.Munmap(m.data)
	}
}
