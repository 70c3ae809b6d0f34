// Package compatibility decides whether a candidate schema may supersede a
// prior version, across JSON Schema, Avro, and Protobuf.
//
// # Modes
//
// NONE: no checking, any change allowed.
//
// BACKWARD: new schema can read data written by old schema. Consumers upgrade
// before producers. Safe: optional field additions. Breaking: field removal,
// incompatible type changes.
//
// FORWARD: old schema can read data written by new schema. Producers upgrade
// before consumers. Safe: optional field removal. Breaking: new required
// fields without defaults.
//
// FULL: BACKWARD and FORWARD both hold.
//
// *_TRANSITIVE variants require the same property against every prior version
// of the subject, not just the immediate predecessor, and accumulate every
// historical violation rather than stopping at the first one.
//
// # Usage
//
//	engine := compatibility.NewEngine()
//	result, err := engine.Check(newSchema, oldSchema, compatibility.ModeBackward)
//	if err != nil {
//		return err
//	}
//	if !result.Compatible {
//		// result.Violations lists every breaking and warning-level finding
//	}
package compatibility
