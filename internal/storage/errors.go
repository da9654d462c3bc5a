package storage

import (
	"net/http"

	"github.com/tansive/apiaccess/internal/common/apperrors"
)

// Common errors for session store operations.
var (
	ErrStorage          apperrors.Error = apperrors.New("session storage error").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidConfig    apperrors.Error = ErrStorage.New("invalid storage configuration")
	ErrInvalidStoreType apperrors.Error = ErrStorage.New("invalid store type")
	ErrClosed           apperrors.Error = ErrStorage.New("store is closed")
	ErrCorrupt          apperrors.Error = ErrStorage.New("corrupt session state")
)
