// Package models defines the core domain models for the gas bottle tracker.
//
// # Records
//
// The tracker keeps a small, unordered list of refill events:
//   - Connection: one gas bottle connected on a given date, at a given cost
//   - Settings: bottle weight and current bottle price, one per user
//   - State: the connections and settings together, as persisted locally
//
// # Remote documents
//
// Document is the schemaless shape exchanged with the remote document store.
// Keys follow a path layout partitioned by the user identity:
//
//	users/{userID}                      settings, lastUpdated, totalConnections
//	users/{userID}/connections/{id}     date, cost, timestamp, bottleWeight
//
// # Errors
//
// Failures are classified with the sentinel errors in errors.go and wrapped
// with fmt.Errorf so callers can test them with errors.Is.
package models
