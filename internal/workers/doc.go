/*
Package workers sizes worker pools from the CPU budget of the process.

The crawler's traversal pool is lstat-bound, so it uses the IO multiplier
(two workers per GOMAXPROCS slot). Operators pin the count with the
CRAWL_WORKERS environment variable or the crawl.workers config key:

	n := workers.Resolve(cfg.CrawlWorkers, 32)

Non-numeric and non-positive overrides are ignored.
*/
package workers
