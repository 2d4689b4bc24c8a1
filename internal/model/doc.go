// Package model defines the data types shared by the archive pipeline.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID assigned on receipt
package model
