package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict},
		{code: CodeIdempotency, status: http.StatusConflict, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests},
		{code: CodeInvalidTransition, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeConcurrentModification, status: http.StatusConflict, retryable: true},
		{code: CodePaymentNotCaptured, status: http.StatusBadRequest, retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			m := MetadataFor(tt.code)
			assert.Equal(t, tt.status, m.HTTPStatus)
			assert.Equal(t, tt.retryable, m.Retryable)
			assert.Equal(t, tt.detailsOK, m.DetailsAllowed)
			assert.NotEmpty(t, m.PublicMessage)
		})
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: order not found", New(CodeNotFound, "order not found").Error())

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load vendor")
	assert.Equal(t, "DEPENDENCY_ERROR: load vendor: connection reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "load vendor", wrapped.Message())
}

func TestNewfFormats(t *testing.T) {
	err := Newf(CodeValidation, "rating %d out of range", 7)
	assert.Equal(t, CodeValidation, err.Code())
	assert.Equal(t, "rating 7 out of range", err.Message())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "missing foo")
	assert.Nil(t, err.Details())
	assert.Same(t, err, err.WithDetails(map[string]string{"field": "foo"}))
	assert.Equal(t, map[string]string{"field": "foo"}, err.Details())

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("ignored"))
	assert.Equal(t, CodeInternal, nilErr.Code())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("apply: %w", New(CodeInvalidTransition, "cancel not allowed"))
	assert.ErrorIs(t, err, New(CodeInvalidTransition, ""))
	assert.NotErrorIs(t, err, New(CodeNotFound, ""))
}

func TestAsAndIsCodeFollowWrappedChain(t *testing.T) {
	inner := New(CodeInvalidTransition, "cancel not allowed")
	outer := fmt.Errorf("apply transition: %w", inner)

	require.NotNil(t, As(outer))
	assert.Same(t, inner, As(outer))
	assert.Nil(t, As(nil))
	assert.True(t, IsCode(outer, CodeInvalidTransition))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: stdErrors.New("boom")},
		{name: "validation", err: New(CodeValidation, "bad")},
		{name: "conflict", err: New(CodeConcurrentModification, "stale"), want: true},
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: PGSerializationFailure}), want: true},
		{name: "deadlock under validation", err: Wrap(CodeValidation, &pgconn.PgError{Code: PGDeadlockDetected}, "x"), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: PGUniqueViolation}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
