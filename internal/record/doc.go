// Package record defines the per-file observation produced by a crawl and
// the line format used for the staging artifact.
//
// A Record is created by a traversal worker, serialized once by the sink
// writer and never mutated afterwards. Each record occupies exactly one
// line of the staging artifact:
//
//	name <TAB> extension <TAB> path <TAB> size <TAB> mtime <TAB> scan_id <LF>
//
// The mtime is UTC RFC 3339 with second precision. Backslash, TAB, LF and CR
// inside a field are written as \\, \t, \n and \r so the delimiter and the
// line terminator never occur inside a field.
package record
