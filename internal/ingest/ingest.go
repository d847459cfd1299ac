// Package ingest turns file system paths into documents ready for parsing.
package ingest

// DirStats summarizes a directory expansion.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}
