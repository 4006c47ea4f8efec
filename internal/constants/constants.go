// Package constants holds default tuning values shared across tinywebd's
// internal packages.
package constants

import "time"

// Connection and listener defaults.
const (
	// MaxFD is the maximum number of simultaneously open connections before
	// the accept loop starts rejecting new ones with a busy response.
	MaxFD = 65536

	// ListenBacklog is the backlog passed to listen(2).
	ListenBacklog = 8

	// DefaultEpollMaxEvents is the default capacity of the epoll_wait event
	// buffer.
	DefaultEpollMaxEvents = 512
)

// Buffer defaults.
const (
	// ReadScratchSize is the size of the secondary iovec used by a buffer's
	// scatter read, large enough to absorb a request line plus headers in a
	// single syscall without growing the primary buffer.
	ReadScratchSize = 65536

	// InitBufferSize is the initial capacity of a freshly allocated buffer.
	InitBufferSize = 1024

	// ETWriteThreshold is the remaining-bytes threshold above which a
	// non-edge-triggered connection keeps writing in the same call instead
	// of waiting for the next EPOLLOUT readiness notification.
	ETWriteThreshold = 10240
)

// Worker pool / blocking queue defaults.
const (
	// DefaultQueueCapacity is the default bound on the task queue shared by
	// worker pool goroutines.
	DefaultQueueCapacity = 1000

	// DefaultLogQueueCapacity is the default bound on the async log record
	// queue.
	DefaultLogQueueCapacity = 1024
)

// Logging defaults.
const (
	// MaxLogLines is the line count at which a log file rolls over to a new
	// numbered file within the same day.
	MaxLogLines = 50000

	LogPathLen = 256
)

// DB pool defaults.
const (
	// DefaultDBPoolSize is used when a caller does not specify a pool size.
	DefaultDBPoolSize = 8
)

// Timing constants.
const (
	// DefaultKeepAliveTimeout is a 60-second idle timeout value. The server
	// does not apply it by itself: the idle timer runs off Config.TimeoutMS,
	// which DefaultConfig leaves at 0 (timer disabled).
	DefaultKeepAliveTimeout = 60 * time.Second

	// TickInterval is a one-second interval. The server's event loop does
	// not consult it: with idle timers disabled, the reactor's Wait call
	// blocks with no timeout.
	TickInterval = time.Second
)
