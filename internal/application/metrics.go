package application

// nopMetrics is the driven.Metrics used when none is injected.
type nopMetrics struct{}

func (nopMetrics) ObserveLookup(string, string)                   {}
func (nopMetrics) ObserveSave(string)                             {}
func (nopMetrics) ObserveMergeCheck(string)                       {}
func (nopMetrics) ObserveRequest(string, string, string, float64) {}
