package dsr

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePhase(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()

	pending := func() *SubRequest { return NewSubRequest(taskID, 0, nil) }
	complete := func() *SubRequest {
		sr := NewSubRequest(taskID, 0, nil)
		require.NoError(t, sr.MarkComplete(nil))
		return sr
	}
	errored := func() *SubRequest {
		sr := NewSubRequest(taskID, 0, nil)
		require.NoError(t, sr.MarkError("boom"))
		return sr
	}

	tests := []struct {
		name string
		subs []*SubRequest
		want Phase
	}{
		{name: "no sub-requests is initial", subs: nil, want: PhaseInitial},
		{name: "all pending is polling", subs: []*SubRequest{pending(), pending()}, want: PhasePolling},
		{name: "mixed is polling", subs: []*SubRequest{complete(), pending()}, want: PhasePolling},
		{name: "all complete is aggregation", subs: []*SubRequest{complete(), complete()}, want: PhaseAggregation},
		{name: "terminal error counts toward aggregation", subs: []*SubRequest{complete(), errored()}, want: PhaseAggregation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DerivePhase(tt.subs))
		})
	}
}
