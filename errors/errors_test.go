package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"greenthumb/errors"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := stderrors.New("connection refused")

	err := errors.NewInferenceError("diagnosis request failed", cause)
	require.True(t, errors.IsInference(err))
	require.False(t, errors.IsStore(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "inference: diagnosis request failed: connection refused", err.Error())
	require.Equal(t, http.StatusBadGateway, errors.StatusCode(err))

	require.True(t, errors.IsStore(errors.NewStoreError("append failed", cause)))
	require.True(t, errors.IsValidation(errors.NewValidationError("bad humidity", nil)))
	require.Equal(t, "validation: bad humidity", errors.NewValidationError("bad humidity", nil).Error())
}

func TestTypeOfWrapped(t *testing.T) {
	err := fmt.Errorf("action: %w", errors.NewNotifyError("broadcast failed", errors.ErrMissingCredentials))
	require.True(t, errors.IsNotify(err))
	require.ErrorIs(t, err, errors.ErrMissingCredentials)

	require.Equal(t, errors.ErrorType(""), errors.TypeOf(stderrors.New("plain")))
	require.Equal(t, http.StatusInternalServerError, errors.StatusCode(stderrors.New("plain")))
}
