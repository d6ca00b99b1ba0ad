package internal

import "expvar"

var (
	requestsTotal   = expvar.NewMap("gerritevents_requests_total")
	parseErrors     = expvar.NewMap("gerritevents_parse_errors_total")
	publishErrors   = expvar.NewMap("gerritevents_publish_errors_total")
	refUpdatesTotal = expvar.NewMap("gerritevents_ref_updates_total")
)

func IncRequest(eventType string) {
	requestsTotal.Add(eventType, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}

// IncRefUpdate counts a ref update per project. Events without a project are
// counted under "unknown".
func IncRefUpdate(project string) {
	if project == "" {
		project = "unknown"
	}
	refUpdatesTotal.Add(project, 1)
}
