// Package audit provides the hash-chained audit trail for registry
// mutations and compatibility decisions.
//
// # Overview
//
// Every lifecycle transition, schema registration, deletion, compatibility
// check, config change, and migration run is appended as a Record. Each
// Record's SelfHash covers its own content plus the previous record's
// SelfHash, so deleting or editing a record breaks VerifyChain for every
// record after it.
//
// # Stores
//
// Log is the in-memory reference Store. FileStore persists the same chain
// to a local append-only file, replaying it back into a Log on open.
// DBStore persists to the audit_records table, resuming the chain from the
// last row on open. MultiStore fans an Append out to a primary and one or
// more mirrors, each keeping its own independent chain over the same
// events.
//
// # Usage
//
//	store, _ := audit.NewDBStore(db)
//	store.Append(ctx, &audit.Record{
//		Type:    audit.TypeLifecycle,
//		Action:  "activate",
//		Result:  audit.ResultSuccess,
//		Actor:   "alice",
//		Subject: "orders.created",
//	})
//
//	results, _ := store.Search(ctx, audit.SearchFilter{
//		Subject: "orders.created",
//		Limit:   50,
//	})
//
// # Retention
//
// DefaultRetentionPolicy keeps a year of records and expects the caller to
// export before Sweep removes anything past that window.
package audit
