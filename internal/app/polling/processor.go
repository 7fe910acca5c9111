package polling

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// ResultType discriminates the two shapes a completed result can take.
type ResultType string

const (
	// ResultTypeRows is a list of row-like mappings.
	ResultTypeRows ResultType = "rows"

	// ResultTypeAttachment is an opaque binary payload.
	ResultTypeAttachment ResultType = "attachment"
)

// PollingResult is the normalized outcome of a result fetch. It is ephemeral:
// consumed immediately into a sub-request's result payload or an attachment,
// never persisted directly.
type PollingResult struct {
	ResultType ResultType
	Rows       []dsr.Row
	Attachment []byte
	Metadata   ResultMetadata
}

// ResultMetadata carries attachment bookkeeping for attachment-type results.
type ResultMetadata struct {
	FileName    string
	ContentType string
}

// EvaluateStatus extracts the value at statusPath from the response body and
// compares it against the configured completion sentinel. When the sentinel
// is a list, any element matching counts as complete; when the extracted
// value is a list, the sentinel matching any element counts as complete.
// A malformed response or missing path fails with a ProtocolError rather than
// being silently coerced to "not done".
func EvaluateStatus(body []byte, statusPath string, completedValue any) (bool, error) {
	if !gjson.ValidBytes(body) {
		return false, dsr.NewProtocolError(statusPath, body, fmt.Errorf("response is not valid JSON"))
	}

	res := gjson.GetBytes(body, statusPath)
	if !res.Exists() {
		return false, dsr.NewProtocolError(statusPath, body, fmt.Errorf("no value at status path"))
	}

	if sentinels, ok := completedValue.([]any); ok {
		for _, sv := range sentinels {
			if matchesSentinel(res, sv) {
				return true, nil
			}
		}
		return false, nil
	}

	return matchesSentinel(res, completedValue), nil
}

func matchesSentinel(res gjson.Result, sentinel any) bool {
	if res.IsArray() {
		for _, elem := range res.Array() {
			if scalarEqual(elem, sentinel) {
				return true
			}
		}
		return false
	}
	return scalarEqual(res, sentinel)
}

func scalarEqual(res gjson.Result, sentinel any) bool {
	switch v := sentinel.(type) {
	case string:
		return res.Type == gjson.String && res.Str == v
	case bool:
		return res.IsBool() && res.Bool() == v
	case int:
		return res.Type == gjson.Number && res.Num == float64(v)
	case int64:
		return res.Type == gjson.Number && res.Num == float64(v)
	case float64:
		return res.Type == gjson.Number && res.Num == v
	case nil:
		return res.Type == gjson.Null
	default:
		return res.String() == fmt.Sprintf("%v", v)
	}
}

// ProcessResult extracts and normalizes a completed result from a result
// response. A list of mappings becomes a rows result; a single mapping
// becomes a one-row result; a binary or opaque payload becomes an attachment
// result with a filename inferred from the request path. Extraction yielding
// nothing returns nil: "done but nothing to return" is a valid, non-error
// outcome.
func ProcessResult(requestPath string, body []byte, resultPath string) (*PollingResult, error) {
	if len(body) == 0 {
		return nil, nil
	}

	// Non-JSON payloads are opaque binary: a file export, a CSV, a PDF.
	if !gjson.ValidBytes(body) {
		return &PollingResult{
			ResultType: ResultTypeAttachment,
			Attachment: body,
			Metadata:   ResultMetadata{FileName: inferFileName(requestPath)},
		}, nil
	}

	res := gjson.ParseBytes(body)
	if resultPath != "" {
		res = gjson.GetBytes(body, resultPath)
		if !res.Exists() || res.Type == gjson.Null {
			return nil, nil
		}
	}

	switch {
	case res.IsArray():
		elems := res.Array()
		if len(elems) == 0 {
			return nil, nil
		}
		rows := make([]dsr.Row, 0, len(elems))
		for _, elem := range elems {
			if !elem.IsObject() {
				return nil, dsr.NewProtocolError(resultPath, body, fmt.Errorf("result list element is not a mapping"))
			}
			row, err := toRow(elem)
			if err != nil {
				return nil, dsr.NewProtocolError(resultPath, body, err)
			}
			rows = append(rows, row)
		}
		return &PollingResult{ResultType: ResultTypeRows, Rows: rows}, nil

	case res.IsObject():
		row, err := toRow(res)
		if err != nil {
			return nil, dsr.NewProtocolError(resultPath, body, err)
		}
		return &PollingResult{ResultType: ResultTypeRows, Rows: []dsr.Row{row}}, nil

	case res.Type == gjson.String:
		// An opaque string payload (e.g. base64 export contents) is treated
		// as an attachment.
		return &PollingResult{
			ResultType: ResultTypeAttachment,
			Attachment: []byte(res.Str),
			Metadata:   ResultMetadata{FileName: inferFileName(requestPath)},
		}, nil

	default:
		return nil, dsr.NewProtocolError(resultPath, body, fmt.Errorf("result value is neither rows nor attachment"))
	}
}

func toRow(res gjson.Result) (dsr.Row, error) {
	var row dsr.Row
	if err := json.Unmarshal([]byte(res.Raw), &row); err != nil {
		return nil, fmt.Errorf("decoding result row: %w", err)
	}
	return row, nil
}

func inferFileName(requestPath string) string {
	base := path.Base(strings.TrimSuffix(requestPath, "/"))
	if base == "." || base == "/" || base == "" {
		return "attachment"
	}
	return base
}
