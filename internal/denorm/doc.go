// Package denorm keeps denormalized aggregate columns (counts, sums) on a
// parent table consistent as child rows are created, updated, deleted or
// re-parented, without rescanning the child set on every change.
//
// A Tracker binds one parent column to an aggregate over a filtered set of
// child rows. When a child mutates, TrackChanges turns the row's before/after
// states into signed per-column deltas targeting at most two parent rows.
// Deltas are applied as storage-evaluated additive updates
// (SET col = col + ?) inside the transaction of the triggering mutation, so
// concurrent writers compose without the process ever read-modify-writing the
// aggregate in memory.
//
// The GORM plugin wires TrackChanges to the create/update/delete callback
// chain and captures pre-mutation snapshots statement-scoped. Recomputer is
// the one authoritative overwrite path, used for initialization and repair.
package denorm
