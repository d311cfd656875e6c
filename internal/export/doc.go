// Package export ships finalized scan summaries to InfluxDB as one
// "scan_run" point per scan, tagged by root and host.
package export
