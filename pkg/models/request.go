package models

// Operation types for request-reply communication with the registry
const (
	OpList      = "list"       // List device summaries
	OpGet       = "get"        // Get one device summary
	OpGetDevice = "get_device" // Device handle for the poller
	OpReadPort  = "read_port"  // Current value of a port
	OpWritePort = "write_port" // Write a new value to a port
	OpPoll      = "poll"       // Force an immediate read cycle
	OpSetOnline = "set_online" // Health monitor marks a device online/offline
	OpGetBatch  = "get_batch"  // Poll intervals for a batch of device IDs
	OpQuery     = "query"      // Port value history
)

// Request is a point-to-point message with reply channel for synchronous communication
type Request struct {
	Operation string        // One of the Op* constants
	DeviceID  string        // Target device
	PortID    string        // Target port, when applicable
	IDs       []string      // For batch operations (get_batch, query)
	Payload   interface{}   // New port value, online flag or query params
	ReplyCh   chan Response // Caller waits on this for synchronous reply
}

// Response contains result or error from service layer
type Response struct {
	Data  interface{}
	Error error
}

// PortWrite is the payload for OpWritePort requests.
type PortWrite struct {
	Value any
}

// BatchScheduleResponse is the payload for OpGetBatch responses.
// Devices missing from the registry (removed since they were queued) are absent.
type BatchScheduleResponse struct {
	Intervals map[string]int // device ID -> poll interval seconds
}
