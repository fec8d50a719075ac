package models

// TapeDrive describes one tape drive, as returned by the /tape/drive
// endpoint.
type TapeDrive struct {
	Name   string  `json:"name"`
	Vendor *string `json:"vendor,omitempty"`
	Model  *string `json:"model,omitempty"`
	Serial *string `json:"serial,omitempty"`
}

// TapeDrivesResponse is the API envelope for the tape drive endpoint.
type TapeDrivesResponse struct {
	Data []TapeDrive `json:"data"`
}
