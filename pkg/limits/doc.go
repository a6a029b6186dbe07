// Package limits groups per-identity request limiting.
//
//   - ratelimit: fixed window point consumption with block periods
//   - storage: counter stores backed by memory, Redis or SQLite
//
// Counter state is shared through the store, so several processes using
// the same Redis or SQLite store enforce one budget per identity.
package limits
