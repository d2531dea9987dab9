// Package docstore persists scribe documents as JSON field sets in SQLite.
//
// Invariants:
// - Document ids are generated by the store and never change.
// - Update merges a partial field set into the stored one; keys not named
//   in the update keep their values.
// - Every write bumps updated_at and the document version.
package docstore
