package store

// Package store is the SQLite persistence layer for displays, groups,
// schedules, execution records and power events.
//
// Execution records and power events are append-only: they are written
// once and never updated.
