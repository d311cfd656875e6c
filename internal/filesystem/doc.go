/*
Package filesystem provides metadata reads that tolerate NFS stale file
handle errors.

Crawl roots are frequently network mounts. A directory entry discovered by
the walker can return ESTALE on the subsequent lstat when the server
invalidates handles mid-crawl. LstatWithRetry and OpenWithRetry retry only
that error, with exponential backoff:

	info, err := filesystem.LstatWithRetry(ctx, path, filesystem.DefaultRetryConfig())

Defaults are 3 retries, 50ms initial backoff and a 500ms cap. Any other
error is returned immediately, so a file that vanished between discovery
and lstat still reports fs.ErrNotExist on the first attempt.

Metrics are recorded through an Observer registered with SetObserver, and
paths are labeled by volume through a VolumeResolver (longest prefix wins).
*/
package filesystem
