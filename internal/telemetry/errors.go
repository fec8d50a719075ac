package telemetry

// Error message templates for common failure scenarios. Templates provide
// consistent, actionable error messages with troubleshooting steps.

const (
	// ErrAuthFailedTemplate is returned when PBS rejects the API token
	// (HTTP 401).
	ErrAuthFailedTemplate = `PBS rejected the API token (HTTP 401 Unauthorized).

Troubleshooting steps:
1. Verify the token exists: proxmox-backup-manager user list-tokens <user>
2. Check the 'tokenId' field in config.yaml matches "user@realm!tokenname"
3. Regenerate the secret if needed and update 'tokenSecret' or the
   PBS_EXPORTER_TOKEN_SECRET environment variable
4. Ensure the token has at least Datastore.Audit permission

Request URL: %s`

	// ErrNonJSONResponseTemplate is returned when the server returns
	// non-JSON content (usually an HTML error page from a proxy).
	ErrNonJSONResponseTemplate = `PBS server returned non-JSON response (Content-Type: %s).

This usually indicates:
1. Wrong API endpoint URL (check 'endpoint' in config.yaml)
2. A reverse proxy in front of PBS serving an error page
3. The endpoint is not a Proxmox Backup Server

Request URL: %s
Response preview: %s`
)
