package dsr

// ActionType identifies the kind of data subject request a task executes
// against its connected data source.
type ActionType string

const (
	// ActionTypeAccess retrieves the rows a data source holds for a subject.
	ActionTypeAccess ActionType = "access"

	// ActionTypeErasure masks the rows a data source holds for a subject.
	ActionTypeErasure ActionType = "erasure"
)

// String returns the string representation of the ActionType.
func (a ActionType) String() string { return string(a) }

// AsyncMechanism identifies how a connector reports completion of work that
// outlives the initial request.
type AsyncMechanism string

const (
	// AsyncMechanismPolling means the engine re-checks a status endpoint on
	// each scheduling tick until the external system reports completion.
	AsyncMechanismPolling AsyncMechanism = "polling"
)

// Row is a single record returned by (or masked in) an external system.
// Keys are connector-defined field names.
type Row map[string]any

// RetrievedAttachmentsKey is the row metadata key under which attachment
// references are stamped by the attachment handler and later merged during
// aggregation.
const RetrievedAttachmentsKey = "retrieved_attachments"

// AttachmentRef is the metadata stamped onto a row for each stored attachment.
type AttachmentRef struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
}
