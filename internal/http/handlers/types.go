package handlers

// HealthResponse is the body returned by the health endpoint.
type HealthResponse struct {
	Status        string         `json:"status" doc:"Overall service status"`
	Timestamp     string         `json:"timestamp" doc:"Current server time (RFC3339)"`
	Version       string         `json:"version" doc:"Build version"`
	Uptime        string         `json:"uptime" doc:"Human-readable uptime"`
	UptimeSeconds float64        `json:"uptime_seconds" doc:"Uptime in seconds"`
	CPU           CPUInfo        `json:"cpu"`
	Memory        MemoryInfo     `json:"memory"`
	Database      DatabaseHealth `json:"database"`
	Queue         QueueHealth    `json:"queue"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// MemoryInfo holds system memory usage.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// DatabaseHealth holds database connectivity and pool information.
type DatabaseHealth struct {
	Status             string  `json:"status"`
	ResponseTimeMS     float64 `json:"response_time_ms"`
	MaxOpenConnections int     `json:"max_open_connections"`
	ActiveConnections  int     `json:"active_connections"`
	IdleConnections    int     `json:"idle_connections"`
}

// QueueHealth holds background work queue depth.
type QueueHealth struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
}
