// Package stores persists the run history of genie-forge in SQLite.
// Every apply, destroy, drift check, import, pull and bulk operation is
// recorded as a run with one event per space, which backs the history
// command and lets operators audit what changed and when.
package stores
