// Package pathkey converts hierarchical object keys into the representations
// the storage backends need.
//
//   - File system paths: every segment is escaped with Sanitize and becomes
//     one directory level, the last one is a file with the ".json" suffix.
//     Escaping replaces '%', '/', '\' and '.' by percent codes, so a segment
//     can never traverse out of the database root and two different keys
//     never share a file.
//
//   - Binary keys: one count byte followed by the NUL terminated segments.
//     Binary keys sort by segment count first, then bytewise, which lets an
//     ordered store enumerate the children of a prefix with one range scan
//     per depth (see ChildRange).
//
// A valid key has 1 to MaxSegments non-empty segments without NUL bytes.
// Every function reports invalid keys with db.ErrInvalidArgument.
package pathkey
