// Package rate provides the fixed-window, block-on-exceed counters that guard
// login, password-reset and verification-resend requests.
//
// # Window semantics
//
// Every request consumes one point. The first point opens a window of
// Policy.Duration. The request that exceeds Policy.Points sets a block of
// Policy.BlockDuration, which outlives any window reset. While blocked,
// requests are rejected without consuming.
//
// Two backends share the [Limiter] interface:
//   - [RedisLimiter]: one Lua script per call, survives process restarts.
//   - [MemoryLimiter]: mutex-guarded map, per process.
//
// # What this package must NOT do
//
//   - Decide which endpoints are limited (the Engine wires instances).
//   - Be imported outside the tokenauth module.
package rate
