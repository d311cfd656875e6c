/*
Package crawler implements the concurrent crawl phase of a scan.

Four parts cooperate:

  - Walker enumerates the tree with filepath.WalkDir on one goroutine and
    hands regular files to a pool of lstat workers, which emit a
    record.Record for each file onto a shared channel and bump an atomic
    counter after every successful send.
  - SinkWriter is the only reader of that channel. It writes whole lines
    to the staging artifact through a buffered writer.
  - Monitor logs a progress line on a ticker and reads the counter without
    locking.
  - Crawl joins the walker and the writer with an errgroup and fixes the
    shutdown order: workers exit, the channel is closed, the writer flushes
    and closes, then the monitor is stopped and the final summary is
    computed from the number of lines written.

Symlinks are never followed or emitted. Each path yields its own record, so
hard links reached through two paths produce two records.

Entries that disappear or cannot be read are counted and skipped. Only a
missing root (ErrRootNotFound), a failure of the walk itself (ErrTraversal)
or a write failure (ErrWriterIO) end the crawl with an error.
*/
package crawler
