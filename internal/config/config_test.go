package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConnectorConfig() *ConnectorConfig {
	return &ConnectorConfig{
		Name:    "vendor",
		BaseURL: "https://api.vendor.example.com",
		Auth:    AuthConfig{Type: "bearer", Config: map[string]any{"token": "t"}},
		Collections: []QueryConfig{{
			CollectionName: "orders",
			ReadRequests: []ReadRequest{{
				Request: SaaSRequest{
					Method:            "POST",
					Path:              "/v1/exports",
					CorrelationIDPath: "export_id",
				},
				AsyncConfig: &AsyncConfig{
					Mechanism: "polling",
					StatusRequest: &SaaSRequest{
						Method:               "GET",
						Path:                 "/v1/exports/<correlation_id>",
						StatusPath:           "status",
						StatusCompletedValue: "complete",
					},
					ResultRequest: &SaaSRequest{
						Method:     "GET",
						Path:       "/v1/exports/<correlation_id>/data",
						ResultPath: "rows",
					},
				},
			}},
		}},
	}
}

func TestConnectorConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*ConnectorConfig)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*ConnectorConfig) {},
		},
		{
			name: "override requests need no method or path",
			mutate: func(c *ConnectorConfig) {
				ac := c.Collections[0].ReadRequests[0].AsyncConfig
				ac.StatusRequest = &SaaSRequest{Override: "vendor_status"}
				ac.ResultRequest = &SaaSRequest{Override: "vendor_result"}
			},
		},
		{
			name:    "missing base URL",
			mutate:  func(c *ConnectorConfig) { c.BaseURL = "" },
			wantErr: "invalid connector config",
		},
		{
			name:    "missing collection name",
			mutate:  func(c *ConnectorConfig) { c.Collections[0].CollectionName = "" },
			wantErr: "invalid connector config",
		},
		{
			name: "async config without status request",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].ReadRequests[0].AsyncConfig.StatusRequest = nil
			},
			wantErr: "status_request",
		},
		{
			name: "declarative status request without status path",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].ReadRequests[0].AsyncConfig.StatusRequest.StatusPath = ""
			},
			wantErr: "status_path",
		},
		{
			name: "declarative result request without result path",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].ReadRequests[0].AsyncConfig.ResultRequest.ResultPath = ""
			},
			wantErr: "result_path",
		},
		{
			name: "invalid method",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].ReadRequests[0].Request.Method = "FETCH"
			},
			wantErr: "invalid connector config",
		},
		{
			name: "declarative read request without method",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].ReadRequests[0].Request.Method = ""
			},
			wantErr: "invalid connector config",
		},
		{
			name: "invalid method on update request",
			mutate: func(c *ConnectorConfig) {
				c.Collections[0].UpdateRequest = &UpdateRequest{
					Request: SaaSRequest{Method: "FETCH", Path: "/v1/deletions"},
				}
			},
			wantErr: "invalid connector config",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConnectorConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConnectorConfigCollection(t *testing.T) {
	t.Parallel()

	cfg := validConnectorConfig()

	qc := cfg.Collection("orders")
	require.NotNil(t, qc)
	assert.Equal(t, "orders", qc.CollectionName)

	assert.Nil(t, cfg.Collection("unknown"))
}

func TestQueryConfigAsyncReadRequests(t *testing.T) {
	t.Parallel()

	qc := &QueryConfig{
		CollectionName: "orders",
		ReadRequests: []ReadRequest{
			{Request: SaaSRequest{Method: "GET", Path: "/sync"}},
			{
				Request: SaaSRequest{Method: "POST", Path: "/async", CorrelationIDPath: "id"},
				AsyncConfig: &AsyncConfig{
					Mechanism:     "polling",
					StatusRequest: &SaaSRequest{Method: "GET", Path: "/status", StatusPath: "s"},
				},
			},
		},
	}

	async := qc.AsyncReadRequests()
	require.Len(t, async, 1)
	assert.Equal(t, "/async", async[0].Request.Path)
}

func TestSaaSRequestIsOverride(t *testing.T) {
	t.Parallel()

	assert.True(t, (&SaaSRequest{Override: "fn"}).IsOverride())
	assert.False(t, (&SaaSRequest{Method: "GET", Path: "/x"}).IsOverride())

	var nilReq *SaaSRequest
	assert.False(t, nilReq.IsOverride())
}
