package telemetry

// HTTP semantic convention attributes
const (
	AttrHTTPMethod                = "http.method"
	AttrHTTPURL                   = "http.url"
	AttrHTTPStatusCode            = "http.status_code"
	AttrHTTPResponseContentLength = "http.response_content_length"
	AttrHTTPDurationMS            = "http.duration_ms"
)

// PBS-specific attributes
const (
	AttrPbsEndpoint   = "pbs.endpoint"
	AttrPbsDatastore  = "pbs.datastore"
	AttrPbsDatastores = "pbs.datastores"
	AttrPbsSnapshots  = "pbs.snapshots"
	AttrPbsTasks      = "pbs.tasks"
	AttrPbsTaskLimit  = "pbs.task_limit"
)

// Scrape cycle attributes
const (
	AttrScrapeDurationMS = "scrape.duration_ms"
	AttrScrapeStatus     = "scrape.status"
)

// Error attributes
const (
	AttrError = "error"
)
