// Package memory derives the Go soft memory limit (GOMEMLIMIT) from the
// container memory limit.
//
// Large crawls keep tens of thousands of records in flight between the
// traversal workers and the staging writer. Inside a container the Go
// runtime does not know the cgroup limit, so without a soft limit the heap
// can grow until the kernel OOM-kills the process. Configure reads the
// limit from MEMORY_LIMIT, typically injected by the Kubernetes Downward
// API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// and sets GOMEMLIMIT to MEMORY_RATIO (default 0.85) of it. An explicit
// GOMEMLIMIT always wins.
package memory
