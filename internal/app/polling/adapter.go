package polling

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethyca/fides-sub009/internal/config"
	"github.com/ethyca/fides-sub009/internal/domain/dsr"
)

// StatusChecker issues the "is it done yet" check for one sub-request.
// Implementations are selected once at configuration-load time, not per call.
type StatusChecker interface {
	Done(ctx context.Context, client AuthenticatedClient, params map[string]any) (bool, error)
}

// ResultFetcher issues the "give me the result" fetch once status indicates
// completion. A nil result means "done but nothing to return", which is a
// valid, non-error outcome.
type ResultFetcher interface {
	Fetch(ctx context.Context, client AuthenticatedClient, params map[string]any) (*PollingResult, error)
}

// StatusOverrideFn is a connector-author supplied replacement for the
// declarative status check.
type StatusOverrideFn func(ctx context.Context, client AuthenticatedClient, params map[string]any) (bool, error)

// ResultOverrideFn is a connector-author supplied replacement for the
// declarative result fetch.
type ResultOverrideFn func(ctx context.Context, client AuthenticatedClient, params map[string]any) (*PollingResult, error)

// OverrideRegistry holds named override functions. Supporting overrides next
// to declarative templates lets most integrations stay pure configuration
// while bespoke protocols (pagination quirks, non-JSON payloads) plug in
// without forking the engine.
type OverrideRegistry struct {
	mu     sync.RWMutex
	status map[string]StatusOverrideFn
	result map[string]ResultOverrideFn
}

// NewOverrideRegistry creates an empty override registry.
func NewOverrideRegistry() *OverrideRegistry {
	return &OverrideRegistry{
		status: make(map[string]StatusOverrideFn),
		result: make(map[string]ResultOverrideFn),
	}
}

// RegisterStatus registers a named status override function.
func (r *OverrideRegistry) RegisterStatus(name string, fn StatusOverrideFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name] = fn
}

// RegisterResult registers a named result override function.
func (r *OverrideRegistry) RegisterResult(name string, fn ResultOverrideFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result[name] = fn
}

func (r *OverrideRegistry) statusOverride(name string) (StatusOverrideFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.status[name]
	return fn, ok
}

func (r *OverrideRegistry) resultOverride(name string) (ResultOverrideFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.result[name]
	return fn, ok
}

// NewStatusChecker builds the status-check strategy for one async request
// template. A declarative template without a status_path is a fail-fast
// contract violation, not a transient error.
func NewStatusChecker(req *config.SaaSRequest, registry *OverrideRegistry) (StatusChecker, error) {
	if req == nil {
		return nil, dsr.NewPrivacyRequestError("async config is missing a status request", nil)
	}

	if req.IsOverride() {
		fn, ok := registry.statusOverride(req.Override)
		if !ok {
			return nil, dsr.NewPrivacyRequestError(
				fmt.Sprintf("status override %q is not registered", req.Override), nil)
		}
		return &OverrideStatusCheck{fn: fn}, nil
	}

	if req.StatusPath == "" {
		return nil, dsr.NewPrivacyRequestError("declarative status request is missing a status_path", nil)
	}

	return &DeclarativeStatusCheck{req: req}, nil
}

// NewResultFetcher builds the result-fetch strategy for one async request
// template. A nil template returns a nil fetcher; callers that require a
// result fetch treat that as a configuration violation.
func NewResultFetcher(req *config.SaaSRequest, registry *OverrideRegistry) (ResultFetcher, error) {
	if req == nil {
		return nil, nil
	}

	if req.IsOverride() {
		fn, ok := registry.resultOverride(req.Override)
		if !ok {
			return nil, dsr.NewPrivacyRequestError(
				fmt.Sprintf("result override %q is not registered", req.Override), nil)
		}
		return &OverrideResultFetch{fn: fn}, nil
	}

	return &DeclarativeResultFetch{req: req}, nil
}

// DeclarativeStatusCheck implements StatusChecker for declarative templates:
// send the status request, extract the value at status_path, compare against
// the configured completion sentinel.
type DeclarativeStatusCheck struct {
	req *config.SaaSRequest
}

// Done issues the status check and interprets the response.
func (c *DeclarativeStatusCheck) Done(ctx context.Context, client AuthenticatedClient, params map[string]any) (bool, error) {
	resp, err := client.Send(ctx, BuildRequestParams(c.req, params), false)
	if err != nil {
		return false, fmt.Errorf("status check request failed: %w", err)
	}
	if !resp.OK() {
		return false, fmt.Errorf("status check returned HTTP %d", resp.StatusCode)
	}

	return EvaluateStatus(resp.Body, c.req.StatusPath, c.req.StatusCompletedValue)
}

// OverrideStatusCheck implements StatusChecker by delegating entirely to a
// registered override function.
type OverrideStatusCheck struct {
	fn StatusOverrideFn
}

// Done delegates to the override function.
func (c *OverrideStatusCheck) Done(ctx context.Context, client AuthenticatedClient, params map[string]any) (bool, error) {
	return c.fn(ctx, client, params)
}

// DeclarativeResultFetch implements ResultFetcher for declarative templates:
// send the result request and normalize the payload at result_path.
type DeclarativeResultFetch struct {
	req *config.SaaSRequest
}

// Fetch issues the result request and processes the response.
func (f *DeclarativeResultFetch) Fetch(ctx context.Context, client AuthenticatedClient, params map[string]any) (*PollingResult, error) {
	built := BuildRequestParams(f.req, params)

	resp, err := client.Send(ctx, built, false)
	if err != nil {
		return nil, fmt.Errorf("result fetch request failed: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("result fetch returned HTTP %d", resp.StatusCode)
	}

	return ProcessResult(built.Path, resp.Body, f.req.ResultPath)
}

// OverrideResultFetch implements ResultFetcher by delegating entirely to a
// registered override function.
type OverrideResultFetch struct {
	fn ResultOverrideFn
}

// Fetch delegates to the override function.
func (f *OverrideResultFetch) Fetch(ctx context.Context, client AuthenticatedClient, params map[string]any) (*PollingResult, error) {
	return f.fn(ctx, client, params)
}
