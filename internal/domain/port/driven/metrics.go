package driven

// Metrics receives operational counters from services and adapters.
type Metrics interface {
	// ObserveLookup records a multi-select lookup outcome: "network",
	// "cache_hit", "stale", "error" or "skipped".
	ObserveLookup(kind, outcome string)
	// ObserveSave records an editor save outcome.
	ObserveSave(outcome string)
	// ObserveMergeCheck records a merge gate recomputation outcome.
	ObserveMergeCheck(outcome string)
	// ObserveRequest records an HTTP request served by a driving adapter.
	ObserveRequest(method, route, status string, durationSeconds float64)
}
