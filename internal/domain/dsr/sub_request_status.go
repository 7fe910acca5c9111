package dsr

// SubRequestStatus represents the state of one external correlation unit.
// Status is monotonic: once a sub-request reaches COMPLETE or ERROR it is
// never transitioned (or re-polled) again.
type SubRequestStatus string

const (
	// SubRequestStatusPending indicates the external job has not yet reported
	// completion.
	SubRequestStatusPending SubRequestStatus = "PENDING"

	// SubRequestStatusComplete indicates the external job finished and its
	// result (if any) has been recorded.
	SubRequestStatusComplete SubRequestStatus = "COMPLETE"

	// SubRequestStatusError indicates a status or result check failed; the
	// failure was recorded before the tick was failed.
	SubRequestStatusError SubRequestStatus = "ERROR"
)

// String returns the string representation of the SubRequestStatus.
func (s SubRequestStatus) String() string { return string(s) }

// IsTerminal reports whether the sub-request will never be polled again.
func (s SubRequestStatus) IsTerminal() bool {
	return s == SubRequestStatusComplete || s == SubRequestStatusError
}
