// Package cli implements the fs-delta command tree.
//
// Every command resolves its configuration through startup.LoadConfig from,
// in priority order, its flags, the environment, an optional --config file
// and built-in defaults. The commands are:
//
//	init-db      create (or with --reset, recreate) the metadata schema
//	scan         run a complete scan of --data-root
//	start-scan   allocate a scan run and print its id
//	crawl        crawl the root of an open scan run into a staging artifact
//	finish-scan  load an artifact, classify changes and finalize the run
//	report       list scan runs or show one with its changes
//	serve        serve the reporting API and /metrics
//	version      print build information
//
// start-scan, crawl and finish-scan split the lifecycle of scan across
// processes. crawl stores its statistics next to the artifact so that
// finish-scan can record them with the run.
package cli
