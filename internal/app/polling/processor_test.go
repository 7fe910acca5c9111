package polling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

func TestEvaluateStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		statusPath     string
		completedValue any
		want           bool
		wantErr        bool
	}{
		{
			name:           "string equality match",
			body:           `{"status": "complete"}`,
			statusPath:     "status",
			completedValue: "complete",
			want:           true,
		},
		{
			name:           "string equality mismatch",
			body:           `{"status": "running"}`,
			statusPath:     "status",
			completedValue: "complete",
			want:           false,
		},
		{
			name:           "nested path",
			body:           `{"job": {"state": "done"}}`,
			statusPath:     "job.state",
			completedValue: "done",
			want:           true,
		},
		{
			name:           "bool sentinel",
			body:           `{"finished": true}`,
			statusPath:     "finished",
			completedValue: true,
			want:           true,
		},
		{
			name:           "numeric sentinel",
			body:           `{"progress": 100}`,
			statusPath:     "progress",
			completedValue: 100,
			want:           true,
		},
		{
			name:           "list sentinel any match",
			body:           `{"status": "succeeded"}`,
			statusPath:     "status",
			completedValue: []any{"complete", "succeeded"},
			want:           true,
		},
		{
			name:           "list sentinel no match",
			body:           `{"status": "running"}`,
			statusPath:     "status",
			completedValue: []any{"complete", "succeeded"},
			want:           false,
		},
		{
			name:           "extracted list containment",
			body:           `{"states": ["queued", "complete"]}`,
			statusPath:     "states",
			completedValue: "complete",
			want:           true,
		},
		{
			name:           "string looking like bool does not match bool sentinel",
			body:           `{"finished": "true"}`,
			statusPath:     "finished",
			completedValue: true,
			want:           false,
		},
		{
			name:           "missing path is a protocol error",
			body:           `{"status": "complete"}`,
			statusPath:     "state",
			completedValue: "complete",
			wantErr:        true,
		},
		{
			name:           "invalid json is a protocol error",
			body:           `not json at all`,
			statusPath:     "status",
			completedValue: "complete",
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := EvaluateStatus([]byte(tt.body), tt.statusPath, tt.completedValue)
			if tt.wantErr {
				require.Error(t, err)
				var protoErr *dsr.ProtocolError
				assert.ErrorAs(t, err, &protoErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessResultRows(t *testing.T) {
	t.Parallel()

	t.Run("list of mappings becomes rows", func(t *testing.T) {
		t.Parallel()

		body := `{"results": [{"id": 1, "email": "a@example.com"}, {"id": 2}]}`
		result, err := ProcessResult("/export/result", []byte(body), "results")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, ResultTypeRows, result.ResultType)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, "a@example.com", result.Rows[0]["email"])
	})

	t.Run("single mapping becomes one row", func(t *testing.T) {
		t.Parallel()

		body := `{"data": {"id": 7, "name": "jane"}}`
		result, err := ProcessResult("/export/result", []byte(body), "data")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, ResultTypeRows, result.ResultType)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "jane", result.Rows[0]["name"])
	})

	t.Run("non mapping list element is a protocol error", func(t *testing.T) {
		t.Parallel()

		body := `{"results": [{"id": 1}, "oops"]}`
		_, err := ProcessResult("/export/result", []byte(body), "results")
		var protoErr *dsr.ProtocolError
		require.ErrorAs(t, err, &protoErr)
	})
}

func TestProcessResultEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		resultPath string
	}{
		{name: "empty body", body: "", resultPath: "data"},
		{name: "missing result path", body: `{"other": 1}`, resultPath: "data"},
		{name: "null at result path", body: `{"data": null}`, resultPath: "data"},
		{name: "empty list at result path", body: `{"data": []}`, resultPath: "data"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := ProcessResult("/export/result", []byte(tt.body), tt.resultPath)
			require.NoError(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestProcessResultAttachment(t *testing.T) {
	t.Parallel()

	t.Run("non json body is an attachment", func(t *testing.T) {
		t.Parallel()

		body := []byte("id,email\n1,a@example.com\n")
		result, err := ProcessResult("/exports/subject-data.csv", body, "")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, ResultTypeAttachment, result.ResultType)
		assert.Equal(t, body, result.Attachment)
		assert.Equal(t, "subject-data.csv", result.Metadata.FileName)
	})

	t.Run("string at result path is an attachment", func(t *testing.T) {
		t.Parallel()

		body := `{"file": "ZXhwb3J0ZWQgZGF0YQ=="}`
		result, err := ProcessResult("/exports/download", []byte(body), "file")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, ResultTypeAttachment, result.ResultType)
		assert.Equal(t, []byte("ZXhwb3J0ZWQgZGF0YQ=="), result.Attachment)
		assert.Equal(t, "download", result.Metadata.FileName)
	})

	t.Run("scalar number is a protocol error", func(t *testing.T) {
		t.Parallel()

		_, err := ProcessResult("/export", []byte(`{"data": 42}`), "data")
		var protoErr *dsr.ProtocolError
		require.ErrorAs(t, err, &protoErr)
	})
}
