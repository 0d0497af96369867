package cache

import (
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/resource"
)

const numShards = 64

// ShardedLRU spreads entries across 64 LRU shards to reduce lock
// contention. Sequence numbers are allocated consecutively per locality, so
// the shard is picked from the low bits of the sequence number mixed with
// the locality.
type ShardedLRU struct {
	shards [numShards]*LRU
}

var _ AddressCache = (*ShardedLRU)(nil)

// NewShardedLRU creates a cache holding about capacity entries, divided
// evenly across the shards.
func NewShardedLRU(capacity int, rc *resource.Controller) *ShardedLRU {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRU{}
	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, rc)
	}
	return s
}

func (s *ShardedLRU) shard(id gid.GID) *LRU {
	k := key(id)
	return s.shards[(k.Lsb^k.Msb>>gid.LocalityIDShift)%numShards]
}

// Get returns a cached address.
func (s *ShardedLRU) Get(id gid.GID) (core.Address, bool) {
	return s.shard(id).Get(id)
}

// Set caches an address.
func (s *ShardedLRU) Set(id gid.GID, addr core.Address) {
	s.shard(id).Set(id, addr)
}

// Delete removes id from the cache.
func (s *ShardedLRU) Delete(id gid.GID) {
	s.shard(id).Delete(id)
}

// Invalidate removes the entries matching predicate from every shard and
// returns how many were removed.
func (s *ShardedLRU) Invalidate(predicate func(id gid.GID, addr core.Address) bool) int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Invalidate(predicate)
	}
	return n
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRU) Stats() (hits, misses int64) {
	for _, shard := range s.shards {
		h, m := shard.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Len returns the total number of entries across all shards.
func (s *ShardedLRU) Len() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}
