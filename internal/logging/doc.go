// Package logging sets up the process logger and keeps a small leveled,
// printf-style facade over it for code outside the scan pipeline.
//
// Setup tees a console encoder on stdout with an optional JSON log file
// (logs/app.log by default). Components that do real work take a
// *zap.Logger through their options; L returns the installed logger for
// that purpose.
//
// The level comes from Options.Level, or DEBUG=true, or LOG_LEVEL
// (debug, info, warn, error), defaulting to info.
package logging
