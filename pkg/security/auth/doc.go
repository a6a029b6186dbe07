// Package auth authenticates callers of the evaluation API with static API
// keys.
//
// Keys are presented as "Authorization: Bearer <key>" or in the X-API-Key
// header. Only SHA-256 digests of configured keys are held in memory and
// lookups compare digests in constant time.
package auth
