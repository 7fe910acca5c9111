// Package config holds the engine and connector configuration types.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultAsyncPollingRequestTimeoutDays is the hard ceiling, in days, on how
// long a task may remain suspended awaiting an external system.
const DefaultAsyncPollingRequestTimeoutDays = 7

// SaaSRequest is a declarative HTTP request description. Path, headers, query
// params, and body may contain <placeholder> tokens substituted from identity
// data, input rows, and sub-request parameter maps at send time.
type SaaSRequest struct {
	Method      string            `yaml:"method" validate:"required_without=Override,omitempty,oneof=GET POST PUT PATCH DELETE"`
	Path        string            `yaml:"path" validate:"required_without=Override"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	QueryParams map[string]string `yaml:"query_params,omitempty"`
	Body        string            `yaml:"body,omitempty"`

	// CorrelationIDPath points at the external job identifier in the
	// triggering request's response.
	CorrelationIDPath string `yaml:"correlation_id_path,omitempty"`

	// StatusPath and StatusCompletedValue configure the declarative "is it
	// done yet" check: the value extracted at StatusPath is compared against
	// StatusCompletedValue (equality, or containment for list sentinels).
	StatusPath           string `yaml:"status_path,omitempty"`
	StatusCompletedValue any    `yaml:"status_completed_value,omitempty"`

	// ResultPath points at the result payload in the result response.
	ResultPath string `yaml:"result_path,omitempty"`

	// Override names a registered override function that replaces the
	// declarative handling of this request entirely.
	Override string `yaml:"override,omitempty"`
}

// IsOverride reports whether this request delegates to an override function.
func (r *SaaSRequest) IsOverride() bool { return r != nil && r.Override != "" }

// AsyncConfig marks a read/update request as async-capable and names the
// status and result request templates used during continuation polling.
// The two legs are independently pluggable: a declarative status check may be
// paired with an override-driven result fetch and vice versa.
type AsyncConfig struct {
	Mechanism     string       `yaml:"mechanism" validate:"required,oneof=polling"`
	StatusRequest *SaaSRequest `yaml:"status_request" validate:"required"`
	ResultRequest *SaaSRequest `yaml:"result_request,omitempty"`
}

// ReadRequest is one configured read endpoint request for access tasks.
type ReadRequest struct {
	Request     SaaSRequest  `yaml:"request"`
	AsyncConfig *AsyncConfig `yaml:"async_config,omitempty"`
}

// UpdateRequest is the configured masking request for erasure tasks.
type UpdateRequest struct {
	Request     SaaSRequest  `yaml:"request"`
	AsyncConfig *AsyncConfig `yaml:"async_config,omitempty"`
}

// QueryConfig is the per-collection request configuration handed to the
// polling strategy for one task: the connector's read requests, its masking
// request, and the subject identity values used for placeholder substitution.
type QueryConfig struct {
	CollectionName string         `yaml:"collection_name" validate:"required"`
	ReadRequests   []ReadRequest  `yaml:"read,omitempty" validate:"omitempty,dive"`
	UpdateRequest  *UpdateRequest `yaml:"update,omitempty"`
	IdentityData   map[string]any `yaml:"identity,omitempty"`
}

// AsyncReadRequests returns the read requests marked async-capable.
func (q *QueryConfig) AsyncReadRequests() []ReadRequest {
	var out []ReadRequest
	for _, rr := range q.ReadRequests {
		if rr.AsyncConfig != nil {
			out = append(out, rr)
		}
	}
	return out
}

// ConnectorConfig is the top-level SaaS connector configuration.
type ConnectorConfig struct {
	Name        string        `yaml:"name" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Auth        AuthConfig    `yaml:"auth"`
	RateLimit   float64       `yaml:"rate_limit,omitempty"`
	Collections []QueryConfig `yaml:"collections" validate:"required,dive"`
}

// AuthConfig represents an authentication configuration for a connector.
type AuthConfig struct {
	Type   string         `yaml:"type" validate:"omitempty,oneof=bearer basic none"`
	Config map[string]any `yaml:"config,omitempty"`
}

// Collection returns the query configuration for the named collection, or
// nil when the connector does not define it.
func (c *ConnectorConfig) Collection(name string) *QueryConfig {
	for i := range c.Collections {
		if c.Collections[i].CollectionName == name {
			return &c.Collections[i]
		}
	}
	return nil
}

// Validate checks the connector configuration for structural problems so that
// misconfiguration fails at load time rather than mid-poll.
func (c *ConnectorConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid connector config %q: %w", c.Name, err)
	}

	for i := range c.Collections {
		qc := &c.Collections[i]
		for j := range qc.ReadRequests {
			ac := qc.ReadRequests[j].AsyncConfig
			if ac == nil {
				continue
			}
			if err := validateAsyncConfig(qc.CollectionName, ac); err != nil {
				return err
			}
		}
		if qc.UpdateRequest != nil && qc.UpdateRequest.AsyncConfig != nil {
			if err := validateAsyncConfig(qc.CollectionName, qc.UpdateRequest.AsyncConfig); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateAsyncConfig(collection string, ac *AsyncConfig) error {
	sr := ac.StatusRequest
	if sr == nil {
		return fmt.Errorf("collection %q: async_config requires a status_request", collection)
	}
	if !sr.IsOverride() && sr.StatusPath == "" {
		return fmt.Errorf("collection %q: declarative status_request requires a status_path", collection)
	}
	if ac.ResultRequest != nil && !ac.ResultRequest.IsOverride() && ac.ResultRequest.ResultPath == "" {
		return fmt.Errorf("collection %q: declarative result_request requires a result_path", collection)
	}
	return nil
}
