package dsr

// Phase is the derived execution phase of a task's asynchronous protocol.
// It is never stored: each tick infers it from persisted sub-request state,
// which is what makes the protocol safely resumable after a crash.
type Phase string

const (
	// PhaseInitial means no sub-requests exist yet: the tick should send the
	// triggering requests and record correlation identifiers.
	PhaseInitial Phase = "INITIAL"

	// PhasePolling means at least one sub-request is still awaiting its
	// external system: the tick should poll all open sub-requests.
	PhasePolling Phase = "POLLING"

	// PhaseAggregation means every sub-request is terminal: the tick should
	// merge results and return control to the graph executor.
	PhaseAggregation Phase = "AGGREGATION"
)

// DerivePhase computes the execution phase from a task's sub-requests.
// It is pure and side-effect-free.
func DerivePhase(subRequests []*SubRequest) Phase {
	if len(subRequests) == 0 {
		return PhaseInitial
	}
	for _, sr := range subRequests {
		if !sr.Status().IsTerminal() {
			return PhasePolling
		}
	}
	return PhaseAggregation
}
