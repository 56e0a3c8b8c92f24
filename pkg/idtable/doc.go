// Package idtable persists the fingerprint -> instance id assignment of one
// task class in a BoltDB file. Assignment is injective and monotone: the
// next id is always the current table size, and an assigned id is never
// reused until the table is cleared. Bolt's file lock serializes writers
// across processes sharing a cache root.
package idtable
