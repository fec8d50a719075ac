package models

// NodeStatus holds host-level status information returned by the
// /nodes/localhost/status endpoint.
type NodeStatus struct {
	// CPU usage as a fraction of 1.0.
	CPU float64 `json:"cpu"`
	// Wait is the CPU I/O wait proportion as a fraction of 1.0.
	Wait float64 `json:"wait"`
	// LoadAvg holds the 1, 5 and 15 minute load averages.
	LoadAvg [3]float64 `json:"loadavg"`
	Memory  Memory     `json:"memory"`
	Swap    Memory     `json:"swap"`
	// Root describes the root filesystem (PBS calls it "root", not "rootfs").
	Root Disk `json:"root"`
	// Uptime of the host in seconds.
	Uptime uint64 `json:"uptime"`
}

// Memory describes a used/total/free triple in bytes.
type Memory struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
}

// Disk describes filesystem usage in bytes.
type Disk struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
	Avail uint64 `json:"avail"`
}

// NodeStatusResponse is the API envelope for the node status endpoint.
type NodeStatusResponse struct {
	Data NodeStatus `json:"data"`
}
