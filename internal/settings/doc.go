// Package settings holds the runtime heartbeat and retention settings for
// each device kind.
//
// Values are seeded from config.yaml, overridden by the state file, and may
// be changed at runtime through the API. Listeners registered with OnChange
// run after each accepted Set, outside the store lock.
package settings
