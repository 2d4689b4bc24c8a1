// Package writer batch-inserts routed publications into the archive database.
//
// Rows are append-only. Publication ids are assigned on receipt, so a replayed batch
// conflicts on the primary key and is counted rather than duplicated.
package writer
