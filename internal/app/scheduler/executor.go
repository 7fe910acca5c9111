package scheduler

import (
	"context"
	"fmt"

	"github.com/ethyca/fides-sub009/internal/app/polling"
	"github.com/ethyca/fides-sub009/internal/config"
	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// Ensure Executor implements TaskRunner at compile time.
var _ TaskRunner = (*Executor)(nil)

// Executor binds the polling strategy to a connector: it resolves the task's
// collection configuration and dispatches to RetrieveData or MaskData based
// on the task's action type. Continuation ticks need no input rows; those
// only parameterize the initial phase, which has already run for any
// suspended task.
type Executor struct {
	strategy  *polling.AsyncPollingStrategy
	client    polling.AuthenticatedClient
	connector *config.ConnectorConfig

	logger *logger.Logger
}

// NewExecutor creates an Executor for one connector.
func NewExecutor(
	strategy *polling.AsyncPollingStrategy,
	client polling.AuthenticatedClient,
	connector *config.ConnectorConfig,
	log *logger.Logger,
) *Executor {
	return &Executor{
		strategy:  strategy,
		client:    client,
		connector: connector,
		logger:    log.With("component", "executor", "connector", connector.Name),
	}
}

// RunTask executes one tick of the task against its collection.
func (e *Executor) RunTask(ctx context.Context, task *dsr.Task) error {
	cfg := e.connector.Collection(task.CollectionName())
	if cfg == nil {
		return dsr.NewPrivacyRequestError(
			fmt.Sprintf("connector %q does not define collection %q", e.connector.Name, task.CollectionName()), nil)
	}

	switch task.ActionType() {
	case dsr.ActionTypeErasure:
		_, err := e.strategy.MaskData(ctx, e.client, task.ID(), cfg, nil)
		return err
	default:
		_, err := e.strategy.RetrieveData(ctx, e.client, task.ID(), cfg, nil)
		return err
	}
}
