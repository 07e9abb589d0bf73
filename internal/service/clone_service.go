package service

import (
	"context"

	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/validation"
	"go.uber.org/zap"
)

// CloneService creates zero-copy table clones and point-in-time restores.
// Neither operation copies row bytes: a clone's head and a restore's new
// head share the resolved state's segments by reference.
type CloneService struct {
	catalog   *CatalogService
	resolver  *ResolverService
	validator *validation.Validator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewCloneService creates a new clone service
func NewCloneService(catalog *CatalogService, resolver *ResolverService, validator *validation.Validator, logger *zap.Logger, m *metrics.Metrics) *CloneService {
	return &CloneService{
		catalog:   catalog,
		resolver:  resolver,
		validator: validator,
		logger:    logger,
		metrics:   m,
	}
}

// Clone forks the source table at the given locator into a new table named
// newName. The clone is fully independent afterwards: writes to either
// table never affect the other.
func (c *CloneService) Clone(ctx context.Context, sourceTableID model.TableID, loc Locator, newName, statementRef string) (*model.TableEntry, error) {
	if err := c.validator.ValidateTableName(newName); err != nil {
		return nil, err
	}

	source, err := c.catalog.Entry(sourceTableID)
	if err != nil {
		return nil, err
	}

	state, err := c.resolver.Resolve(ctx, sourceTableID, loc)
	if err != nil {
		return nil, err
	}

	entry, err := c.catalog.Clone(ctx, source, state, newName, statementRef)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ClonesTotal.Inc()
	}
	return entry, nil
}

// RestoreBefore rewinds a table to the state immediately preceding a
// statement by appending a new head whose content equals that state. The
// chain stays append-only; nothing between the restored point and the old
// head is discarded until retention retires it.
func (c *CloneService) RestoreBefore(ctx context.Context, tableID model.TableID, statementRef, restoreRef string) (*model.TableState, error) {
	target, err := c.resolver.Resolve(ctx, tableID, BeforeStatement(statementRef))
	if err != nil {
		return nil, err
	}

	entry, err := c.catalog.Entry(tableID)
	if err != nil {
		return nil, err
	}

	state, err := c.catalog.AppendStateFrom(ctx, tableID, entry.HeadStateID, target, model.OpDDL, restoreRef)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Table restored",
		zap.Uint64("table_id", uint64(tableID)),
		zap.String("before_statement", statementRef),
		zap.Uint64("restored_to_state", uint64(target.StateID)),
		zap.Uint64("new_head", uint64(state.StateID)))
	return state, nil
}
