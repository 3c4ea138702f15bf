package protocol

// Plaintext notices sent instead of a frame when a connection is refused
// before its request is read. They are not framed.
const (
	BusyPrefix = "SERVER_BUSY"

	BusyNotice        = BusyPrefix + ": Your IP is already processing a request."
	RateLimitedNotice = BusyPrefix + ": Too many connections, retry later."
)
