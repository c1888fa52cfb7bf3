package telemetry

// API is where every component of the scraper reports what happened to it.
// Tests swap it for a Recorder to check what was reported.
type API interface {
	// ReportBroken reports a failure someone has to look at, like a login page
	// that changed or a bills folder that cannot be written.
	//
	// `id` names the component and the operation that failed, not the line of
	// code: `client.fetch-bills-page`, `store.save-bill`. Details such as the
	// url or the http status go in `params` or in the wrapped error.
	//
	// Ids are lowercase, dots separate the component from the operation and
	// dashes separate words. The package is added by wrapping the API in a
	// ScopedAPI, so ids stay short.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected the run recovered from, like a
	// bill line that could not be parsed. Ids follow ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports progress only shown in verbose mode.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many of something were seen by the last
	// operation, like the bills of a page. Counts are samples, not totals.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with the name of the package reporting it.
// Scopes nest: the outer scope prefixes first, so
// NewScopedAPI("a", NewScopedAPI("b", api)) reports "b: a: <id>".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}
