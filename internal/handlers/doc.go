// Package handlers serves the read-only reporting API over scan history.
//
// Endpoints:
//   - GET /api/scans?limit=N: recent scan runs, newest first
//   - GET /api/scans/{id}: one scan run with per-category change totals
//   - GET /api/scans/{id}/changes?type=added|modified|deleted&limit=N
//   - GET /health, /livez, /version and, when enabled, /metrics
//
// Scans that never finalized are listed with a null finishedAt.
package handlers
