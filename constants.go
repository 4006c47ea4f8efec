package tinywebd

import "github.com/ehrlich-b/tinywebd/internal/constants"

// Re-exported tuning defaults, for callers that construct a Config without
// reaching into internal/constants directly.
const (
	MaxFD                   = constants.MaxFD
	ListenBacklog           = constants.ListenBacklog
	DefaultEpollMaxEvents   = constants.DefaultEpollMaxEvents
	DefaultQueueCapacity    = constants.DefaultQueueCapacity
	DefaultLogQueueCapacity = constants.DefaultLogQueueCapacity
	DefaultDBPoolSize       = constants.DefaultDBPoolSize
	DefaultKeepAliveTimeout = constants.DefaultKeepAliveTimeout
)
