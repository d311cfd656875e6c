package database

import (
	"errors"
	"time"
)

var (
	// ErrScanNotFound is returned when no scan run has the requested id.
	ErrScanNotFound = errors.New("scan run not found")
	// ErrScanNotOpen is returned when a scan run was already finalized.
	ErrScanNotOpen = errors.New("scan run is not open")
	// ErrMalformedLine is returned by LoadStaging for an invalid staging line.
	ErrMalformedLine = errors.New("malformed staging line")
)

// ChangeType classifies a path's change between two scans of a root.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// ChangeTypes lists every category in reporting order.
var ChangeTypes = []ChangeType{ChangeAdded, ChangeModified, ChangeDeleted}

// Valid reports whether c is one of the known categories.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeAdded, ChangeModified, ChangeDeleted:
		return true
	}
	return false
}

// ChangeTotal aggregates one change category of a scan. Bytes is the sum of
// |new size - old size| with a missing side counted as zero.
type ChangeTotal struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// ScanRun is the persisted record of one crawl. Pointer fields are nil
// until the run is finalized.
type ScanRun struct {
	ScanID             int64             `json:"scanId" yaml:"scan_id"`
	ScanRoot           string            `json:"scanRoot" yaml:"scan_root"`
	StartedAt          time.Time         `json:"startedAt" yaml:"started_at"`
	FinishedAt         *time.Time        `json:"finishedAt" yaml:"finished_at"`
	TotalPathsCount    *int64            `json:"totalPathsCount" yaml:"total_paths_count"`
	AddedFilesCount    *int64            `json:"addedFilesCount" yaml:"added_files_count"`
	ModifiedFilesCount *int64            `json:"modifiedFilesCount" yaml:"modified_files_count"`
	RemovedFilesCount  *int64            `json:"removedFilesCount" yaml:"removed_files_count"`
	NewDataMB          *float64          `json:"newDataMb" yaml:"new_data_mb"`
	ModifiedDataMB     *float64          `json:"modifiedDataMb" yaml:"modified_data_mb"`
	DeletedDataMB      *float64          `json:"deletedDataMb" yaml:"deleted_data_mb"`
	Metadata           map[string]string `json:"scanMetadata,omitempty" yaml:"scan_metadata,omitempty"`
}

// Open reports whether the run has not been finalized.
func (s *ScanRun) Open() bool {
	return s.FinishedAt == nil
}

// FinalizeParams carries the results written by FinalizeScan.
type FinalizeParams struct {
	FinishedAt     time.Time
	TotalPaths     int64
	Added          int64
	Modified       int64
	Removed        int64
	NewDataMB      float64
	ModifiedDataMB float64
	DeletedDataMB  float64
	Metadata       map[string]string
}

// FileChange is one classified path of a scan.
type FileChange struct {
	ScanID       int64      `json:"scanId" yaml:"scan_id"`
	Path         string     `json:"path" yaml:"path"`
	ChangeType   ChangeType `json:"changeType" yaml:"change_type"`
	OldSizeBytes *int64     `json:"oldSizeBytes" yaml:"old_size_bytes"`
	NewSizeBytes *int64     `json:"newSizeBytes" yaml:"new_size_bytes"`
	OldModTime   *time.Time `json:"oldModTime" yaml:"old_mtime"`
	NewModTime   *time.Time `json:"newModTime" yaml:"new_mtime"`
}

// BytesToMB converts a byte count to mebibytes.
func BytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
