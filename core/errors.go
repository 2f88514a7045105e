package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ApprovalErrorSignatureInvalid  = "APPROVAL_SIGNATURE_INVALID"
	ApprovalErrorTimestampExpired  = "APPROVAL_TIMESTAMP_EXPIRED"
	ApprovalErrorMalformedRequest  = "APPROVAL_MALFORMED_REQUEST"
	ApprovalErrorAuthzDenied       = "APPROVAL_AUTHZ_DENIED"
	ApprovalErrorValidationFailed  = "APPROVAL_VALIDATION_FAILED"
	ApprovalErrorVersionConflict   = "APPROVAL_VERSION_CONFLICT"
	ApprovalErrorNotFound          = "APPROVAL_NOT_FOUND"
	ApprovalErrorAlreadyFinalized  = "APPROVAL_ALREADY_FINALIZED"
	ApprovalErrorExternalTransient = "APPROVAL_EXTERNAL_TRANSIENT"
	ApprovalErrorExternalPermanent = "APPROVAL_EXTERNAL_PERMANENT"
	ApprovalErrorStoreUnavailable  = "APPROVAL_STORE_UNAVAILABLE"
	ApprovalErrorMisconfigured     = "APPROVAL_MISCONFIGURED"
	ApprovalErrorInternal          = "APPROVAL_INTERNAL_ERROR"
)

func approvalErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureApprovalErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newApprovalError(err.Error(), goerrors.CategoryAuth, ApprovalErrorSignatureInvalid)
	case strings.Contains(msg, "timestamp"):
		return newApprovalError(err.Error(), goerrors.CategoryAuth, ApprovalErrorTimestampExpired)
	case strings.Contains(msg, "version conflict"):
		return newApprovalError(err.Error(), goerrors.CategoryConflict, ApprovalErrorVersionConflict)
	case strings.Contains(msg, "already finalized"):
		return newApprovalError(err.Error(), goerrors.CategoryConflict, ApprovalErrorAlreadyFinalized)
	case strings.Contains(msg, "not found"):
		return newApprovalError(err.Error(), goerrors.CategoryNotFound, ApprovalErrorNotFound)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return newApprovalError(err.Error(), goerrors.CategoryExternal, ApprovalErrorExternalTransient)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"),
		strings.Contains(msg, "malformed"):
		return newApprovalError(err.Error(), goerrors.CategoryBadInput, ApprovalErrorMalformedRequest)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureApprovalErrorEnvelope(mapped)
}

func newApprovalError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureApprovalErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureApprovalErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = approvalHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultApprovalTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultApprovalTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ApprovalErrorMalformedRequest
	case goerrors.CategoryValidation:
		return ApprovalErrorValidationFailed
	case goerrors.CategoryNotFound:
		return ApprovalErrorNotFound
	case goerrors.CategoryAuth:
		return ApprovalErrorSignatureInvalid
	case goerrors.CategoryAuthz:
		return ApprovalErrorAuthzDenied
	case goerrors.CategoryConflict:
		return ApprovalErrorVersionConflict
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return ApprovalErrorExternalTransient
	default:
		return ApprovalErrorInternal
	}
}

func approvalHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTransientExternal reports whether an external-call failure may be
// retried. Auth, authz, validation, and not-found failures are fatal
// and surface immediately.
func IsTransientExternal(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz,
			goerrors.CategoryValidation, goerrors.CategoryNotFound,
			goerrors.CategoryBadInput:
			return false
		case goerrors.CategoryRateLimit, goerrors.CategoryExternal,
			goerrors.CategoryOperation:
			return true
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case ApprovalErrorExternalPermanent, ApprovalErrorAuthzDenied:
			return false
		case ApprovalErrorExternalTransient, ApprovalErrorStoreUnavailable:
			return true
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "permission") {
		return false
	}
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "throttl") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporar") ||
		strings.Contains(msg, "connection")
}
