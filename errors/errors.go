package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// GatewayError is the error shape surfaced to callers of the gateway.
// Code and Description map directly onto the {errcode, errmsg} wire body.
type GatewayError struct {
	Code        int    `json:"errcode"`
	Kind        string `json:"-"`
	Description string `json:"errmsg"`
	wrapped     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *GatewayError) Unwrap() error { return e.wrapped }

// Is matches two GatewayErrors by kind, so errors.Is works against the
// sentinel constructors below regardless of description.
func (e *GatewayError) Is(target error) bool {
	var ge *GatewayError
	if errors.As(target, &ge) {
		return e.Kind == ge.Kind
	}
	return false
}

// Error kinds. Codec kinds abort callback processing before decryption
// (SignatureMismatch) or during payload recovery (PaddingError, TenantMismatch).
const (
	KindSignatureMismatch = "signature_mismatch"
	KindPaddingError      = "padding_error"
	KindTenantMismatch    = "tenant_mismatch"
	KindNotFound          = "not_found"
	KindStorageError      = "storage_error"
	KindTransportError    = "transport_error"
	KindUpstreamError     = "upstream_error"
	KindUnknownSyncAction = "unknown_sync_action"
	KindConsumedCode      = "consumed_code"
	KindUnsupported       = "unsupported_operation"
	KindBadRequest        = "bad_request"
)

func newError(kind string, code int, description string) *GatewayError {
	return &GatewayError{Code: code, Kind: kind, Description: description}
}

func NewSignatureMismatch(description string) *GatewayError {
	return newError(KindSignatureMismatch, http.StatusInternalServerError, description)
}

func NewPaddingError(description string) *GatewayError {
	return newError(KindPaddingError, http.StatusInternalServerError, description)
}

func NewTenantMismatch(description string) *GatewayError {
	return newError(KindTenantMismatch, http.StatusInternalServerError, description)
}

func NewNotFound(description string) *GatewayError {
	return newError(KindNotFound, http.StatusNotFound, description)
}

func NewStorageError(description string, err error) *GatewayError {
	e := newError(KindStorageError, http.StatusInternalServerError, description)
	e.wrapped = err
	return e
}

func NewTransportError(description string, err error) *GatewayError {
	e := newError(KindTransportError, http.StatusInternalServerError, description)
	e.wrapped = err
	return e
}

func NewUpstreamError(description string) *GatewayError {
	return newError(KindUpstreamError, http.StatusInternalServerError, description)
}

func NewUnknownSyncAction(action string) *GatewayError {
	return newError(KindUnknownSyncAction, http.StatusInternalServerError, "unknown sync action "+action)
}

func NewConsumedCode(authCode string) *GatewayError {
	return newError(KindConsumedCode, http.StatusNotFound, "auth code "+authCode+" already consumed or unknown")
}

func NewUnsupported(description string) *GatewayError {
	return newError(KindUnsupported, http.StatusInternalServerError, description)
}

func NewBadRequest(description string) *GatewayError {
	return newError(KindBadRequest, http.StatusBadRequest, description)
}

// Sentinels for errors.Is checks.
var (
	ErrSignatureMismatch = NewSignatureMismatch("")
	ErrPaddingError      = NewPaddingError("")
	ErrTenantMismatch    = NewTenantMismatch("")
	ErrNotFound          = NewNotFound("")
	ErrConsumedCode      = &GatewayError{Kind: KindConsumedCode, Code: http.StatusNotFound}
	ErrUnsupported       = NewUnsupported("")
	ErrUnknownSyncAction = &GatewayError{Kind: KindUnknownSyncAction, Code: http.StatusInternalServerError}
)
