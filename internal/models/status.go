package models

// ServerInfoResponse is returned by the /server_info endpoint
type ServerInfoResponse struct {
	Uptime            float64         `json:"uptime"`
	ActiveConnections int             `json:"active_connections"`
	RootDir           string          `json:"root_dir"`
	Resources         SystemResources `json:"resources"`
}

// SystemResources describes the server process and the disk holding its root
type SystemResources struct {
	CPUCount      int     `json:"cpu_count"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss"`
	MemoryVMS     uint64  `json:"memory_vms"`
	MemoryPercent float32 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskUsed      uint64  `json:"disk_used"`
	DiskFree      uint64  `json:"disk_free"`
	DiskPercent   float64 `json:"disk_percent"`
}
