package scanner

import "errors"

// Trigger and scan failures. Callers match them with errors.Is.
var (
	// ErrScanInProgress rejects a trigger for a root-set that is already
	// being scanned. The trigger is not queued.
	ErrScanInProgress = errors.New("scan already in progress for these folders")
	// ErrRootUnreachable fails a scan whose configured folder cannot be read.
	ErrRootUnreachable = errors.New("root folder unreachable")
	// ErrSkipThresholdExceeded fails a scan when too many files could not
	// be probed.
	ErrSkipThresholdExceeded = errors.New("too many files could not be probed")
	// ErrNoRoots rejects a trigger with no scan folders.
	ErrNoRoots = errors.New("no scan folders configured")
	// ErrCommit reports that a finished scan could not be stored.
	ErrCommit = errors.New("storing scan results failed")
)
