package scanning

import "errors"

// Scan failures are all recoverable: the caller falls back to a manual
// save-anyway path with no classification data attached.
var (
	// ErrNoActiveTab means the caller supplied no eligible tab to scan.
	ErrNoActiveTab = errors.New("no active tab")

	// ErrInjectionFailed means the classifier could not be loaded into the
	// target page context.
	ErrInjectionFailed = errors.New("classifier injection failed")

	// ErrScanTimeout means no verdict arrived before the scan deadline.
	ErrScanTimeout = errors.New("scan timed out")

	// ErrScanInProgress means a scan for the same tab has not settled yet.
	// A second concurrent request is rejected rather than allowed to orphan
	// the first request's timer.
	ErrScanInProgress = errors.New("scan already in progress for tab")
)
