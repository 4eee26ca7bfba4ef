// Package preflight checks that the host can run the content indexes before
// they are opened: free disk space and write permission on the storage root,
// the open-file limit, and leftover lock markers.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, root, descriptors)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to open the registry
//	}
package preflight
