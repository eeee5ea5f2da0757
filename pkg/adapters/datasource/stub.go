package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// StubConnector stands in for a backend that accepts configuration but has
// no driver yet. Every operation fails with a not-implemented error.
type StubConnector struct {
	dsType      models.DataSourceType
	displayName string
}

// NewStubConnector returns a connector whose Connect fails fast.
func NewStubConnector(dsType models.DataSourceType, displayName string) *StubConnector {
	return &StubConnector{dsType: dsType, displayName: displayName}
}

func (s *StubConnector) err() error {
	return apperrors.NotImplemented("%s connector not yet implemented", s.displayName)
}

func (s *StubConnector) Connect(context.Context) error {
	return s.err()
}

func (s *StubConnector) TestConnection(context.Context) bool {
	return false
}

func (s *StubConnector) ExecuteQuery(context.Context, string, ExecutionContext) (*ExecutionResult, error) {
	return nil, s.err()
}

func (s *StubConnector) GetSchema(context.Context) (*models.Schema, error) {
	return nil, s.err()
}

func (s *StubConnector) ValidateQuery(context.Context, string) models.ValidationResult {
	return models.ValidationResult{IsValid: false, Error: s.err().Error()}
}

func (s *StubConnector) Close() error {
	return nil
}

func (s *StubConnector) GetHealth(context.Context) models.HealthStatus {
	return models.HealthStatus{
		Status:      models.Unhealthy,
		LastChecked: time.Now(),
		Details:     map[string]any{"error": s.err().Error()},
	}
}

func (s *StubConnector) Type() models.DataSourceType {
	return s.dsType
}

var _ Connector = (*StubConnector)(nil)
