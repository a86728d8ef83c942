package chat

import "time"

const (
	// RecentCacheSize bounds the in-memory tail of the message log used to
	// seed new connections. Oldest entries are evicted beyond this.
	RecentCacheSize = 100

	// seedPageSize is how much history a new connection is seeded with.
	seedPageSize = 100

	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute

	defaultHistoryPageSize = 100
	maxHistoryPageSize     = 500
)
