package models

// DatastoreUsage holds capacity information for one datastore, as returned
// by the /status/datastore-usage endpoint.
type DatastoreUsage struct {
	// Store is the datastore name.
	Store string `json:"store"`
	// Total size in bytes.
	Total uint64 `json:"total"`
	// Used bytes.
	Used uint64 `json:"used"`
	// Avail is the available bytes.
	Avail uint64 `json:"avail"`
}

// DatastoreUsageResponse is the API envelope for the datastore usage endpoint.
type DatastoreUsageResponse struct {
	Data []DatastoreUsage `json:"data"`
}
