package fraud

import "time"

// Default detection thresholds
const (
	// DefaultDeviceShareThreshold is the number of distinct persons on one
	// device that raises a flag
	DefaultDeviceShareThreshold = 2

	// DefaultRapidSessionThreshold is the shortest plausible session
	DefaultRapidSessionThreshold = time.Minute

	// DefaultDuplicateOccurrences is how often one clock-in time must recur to form a cluster
	DefaultDuplicateOccurrences = 3

	// DefaultDuplicateClusters is the number of clusters that raises the data-quality flag
	DefaultDuplicateClusters = 3
)

// clockTimeLayout is the precision at which clock-in times are compared
const clockTimeLayout = "15:04:05"

// checkEvery is how many records are scanned between context checks
const checkEvery = 1024
