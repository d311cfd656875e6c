package crawler

import "errors"

var (
	// ErrRootNotFound is returned before any worker starts when the crawl root
	// does not exist or is not a directory.
	ErrRootNotFound = errors.New("crawl root not found")

	// ErrTraversal marks a failure of the traversal as a whole, such as the
	// root becoming unreadable mid-walk.
	ErrTraversal = errors.New("traversal failed")

	// ErrWriterIO marks a failure writing the staging artifact.
	ErrWriterIO = errors.New("staging artifact write failed")
)
