// Package sanitize converts arbitrary extraction output into plain,
// transport-safe data.
//
// The result is a Value: a tagged union of null, bool, int, float, string,
// sequence and mapping. Conversion is total (unknown kinds fall back to their
// string form), bounded in depth and in total work, and idempotent:
// sanitizing the plain form of a sanitized value yields the same value.
// Pointers, maps and slices that refer back to a value on the current path
// become "[CYCLE]". Map entries are visited in key order, so the output does
// not depend on map iteration.
//
// Two conversions change shape. Enumerated values (named string types and
// named integer types with a String method) become their uppercase canonical
// string. Checked wrappers, mappings whose "value" entry is a scalar, collapse
// to that scalar.
package sanitize
