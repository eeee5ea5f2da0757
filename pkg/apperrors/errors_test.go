package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	backend := errors.New("Binder Error: column x not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Validation("sql is required"), KindValidation},
		{"invalid wrap", Invalid(errors.New("too long")), KindValidation},
		{"not found", NotFound("data source %s not found", "x"), KindNotFound},
		{"connection", Connection(backend, "connect"), KindConnection},
		{"execution", Execution(backend, "query failed"), KindExecution},
		{"cache", Cache(backend, "redis"), KindCache},
		{"not implemented", NotImplemented("bigquery connector"), KindNotImplemented},
		{"wrapped", fmt.Errorf("outer: %w", Execution(backend, "q")), KindExecution},
		{"bare sentinel", fmt.Errorf("lookup: %w", ErrNotFound), KindNotFound},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorIsAndUnwrap(t *testing.T) {
	err := Execution(context.DeadlineExceeded, "query timed out after %s", "30s")

	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "query timed out after 30s: context deadline exceeded", err.Error())

	ni := NotImplemented("%s connector not yet implemented", "Snowflake")
	assert.ErrorIs(t, ni, ErrNotImplemented)
	assert.Equal(t, "Snowflake connector not yet implemented", ni.Error())
	assert.Equal(t, KindNotImplemented, KindOf(ni))

	inv := Invalid(errors.New("multiple statements"))
	assert.Equal(t, "multiple statements", inv.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(KindConnection))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(KindExecution))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindCache))
	assert.Equal(t, http.StatusNotImplemented, HTTPStatus(KindNotImplemented))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}
