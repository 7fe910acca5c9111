package polling

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// ExtractCorrelationID pulls the external system's opaque job identifier out
// of a triggering request's response body using the configured path
// expression. The extracted value becomes part of the sub-request's parameter
// map and is what lets later polling ticks find their external job without
// any other shared state. An expression that yields nothing fails with a
// ProtocolError.
func ExtractCorrelationID(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", dsr.NewProtocolError(path, body, fmt.Errorf("response is not valid JSON"))
	}

	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return "", dsr.NewProtocolError(path, body, fmt.Errorf("no correlation id at path"))
	}

	id := res.String()
	if id == "" {
		return "", dsr.NewProtocolError(path, body, fmt.Errorf("correlation id is empty"))
	}

	return id, nil
}
