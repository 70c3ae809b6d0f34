// Package migration implements the schema registry's migration planner:
// given an old and new version of the same schema, it analyzes the
// structural difference, recommends a migration strategy, generates
// transformation/test/rollback code for each requested target language, and
// validates the resulting plan for data-loss and type-compatibility risk.
//
// # Pipeline
//
// Engine.GenerateMigration runs every stage below except Validate and returns
// the Plan; Engine.ValidateMigration runs Validate on that Plan:
//
//	Analyze    -> SchemaDiff (pkg/format field inventories, diffed)
//	Strategize -> MigrationStrategy (Safe/Risky/Manual/DualWrite/Shadow)
//	Generate   -> map[Language]GeneratedCode (text/template, one template
//	              file per language under templates/)
//	Validate   -> ValidationReport (data-loss, unsafe conversions, new
//	              constraints existing data may violate)
//	PlanRollback -> RollbackPlan (Reverse/Backup/Manual)
//
// The planner never executes a migration against live data; it produces
// artifacts for an operator or a downstream job to run.
//
// # Relationship to pkg/compatibility
//
// Both packages walk the same pkg/format field inventories but answer
// different questions: pkg/compatibility asks "can this new schema version
// be published" (pairwise/transitive compatibility across a fixed set of
// modes); pkg/migration asks "given that it will be published, what changes
// and how do we move data and code forward."
package migration
