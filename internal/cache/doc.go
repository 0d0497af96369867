// Package cache provides the locality-local address-resolution cache.
//
// The ShardedLRU maps the identity (stripped GID) of a component to its
// resolved address. The handle deleters only read it to decide whether a
// never-split identifier can be destroyed without talking to the address
// service; entries are written by whoever binds or resolves ids.
//
// Key features:
//   - Shard selection using maphash over both GID words
//   - Per-shard mutex for minimal contention
//   - Integrated with resource.Controller for memory limits
package cache
