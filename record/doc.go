// Package record implements core.RecordStore against the club registration
// datastore, plus a durable effect ledger sharing the same database. The
// in-memory variant exists for tests and demos; production wiring opens the
// GORM store.
package record
