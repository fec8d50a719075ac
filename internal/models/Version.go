package models

// VersionInfo holds PBS version information from the /version endpoint.
type VersionInfo struct {
	Version string `json:"version"`
	Release string `json:"release"`
	RepoID  string `json:"repoid"`
}

// VersionResponse is the API envelope for the version endpoint.
type VersionResponse struct {
	Data VersionInfo `json:"data"`
}
