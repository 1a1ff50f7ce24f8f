package ports

import "time"

// Metrics records repository activity.
type Metrics interface {
	// InstallFinished records one installation attempt and its outcome
	// (the final artifact state).
	InstallFinished(pluginID, outcome string, d time.Duration)
	// Removed records an explicit removal.
	Removed(pluginID string)
	// Evicted records a removal made by pruning.
	Evicted(pluginID string)
	// SetUsage records the total installed size and record count.
	SetUsage(usedBytes int64, artifacts int)
}
