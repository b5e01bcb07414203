package services

// ResolveTeam addresses the spec's open question: the source treats an
// on-call lookup's "team" as synonymous with an incident's "service",
// with no mapping table defined. This isolates that assumption in one
// function, defaulting to identity, so a future real mapping is a
// one-function change rather than a guess scattered through callers.
func ResolveTeam(service string) string {
	return service
}
