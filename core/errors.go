package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ConnectorErrorUnauthorized        = "CONNECTOR_UNAUTHORIZED"
	ConnectorErrorInvalidAction       = "CONNECTOR_INVALID_ACTION"
	ConnectorErrorProviderUnsupported = "CONNECTOR_PROVIDER_UNSUPPORTED"
	ConnectorErrorNotImplemented      = "CONNECTOR_NOT_IMPLEMENTED"
	ConnectorErrorStateInvalid        = "CONNECTOR_STATE_INVALID"
	ConnectorErrorTokenExchangeFailed = "CONNECTOR_TOKEN_EXCHANGE_FAILED"
	ConnectorErrorProfileFetchFailed  = "CONNECTOR_PROFILE_FETCH_FAILED"
	ConnectorErrorAccountNotFound     = "CONNECTOR_ACCOUNT_NOT_FOUND"
	ConnectorErrorNoRefreshToken      = "CONNECTOR_NO_REFRESH_TOKEN"
	ConnectorErrorInternal            = "CONNECTOR_INTERNAL"
)

type ErrorMapper func(err error) *goerrors.Error

func NewUnauthorizedError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryAuth, http.StatusUnauthorized, ConnectorErrorUnauthorized)
}

func NewInvalidActionError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ConnectorErrorInvalidAction)
}

func NewProviderUnsupportedError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ConnectorErrorProviderUnsupported)
}

func NewNotImplementedError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryOperation, http.StatusNotImplemented, ConnectorErrorNotImplemented)
}

func NewStateInvalidError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ConnectorErrorStateInvalid)
}

func NewTokenExchangeError(cause error, message string) *goerrors.Error {
	return wrapConnectorError(cause, message, goerrors.CategoryOperation, http.StatusInternalServerError, ConnectorErrorTokenExchangeFailed)
}

func NewProfileFetchError(cause error, message string) *goerrors.Error {
	return wrapConnectorError(cause, message, goerrors.CategoryOperation, http.StatusInternalServerError, ConnectorErrorProfileFetchFailed)
}

func NewAccountNotFoundError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryNotFound, http.StatusNotFound, ConnectorErrorAccountNotFound)
}

func NewNoRefreshTokenError(message string) *goerrors.Error {
	return newConnectorError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ConnectorErrorNoRefreshToken)
}

func newConnectorError(message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func wrapConnectorError(cause error, message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	if cause == nil {
		return newConnectorError(message, category, code, textCode)
	}
	return goerrors.Wrap(cause, category, message).
		WithCode(code).
		WithTextCode(textCode)
}

// connectorErrorMapper guarantees every error leaving the service carries a
// full envelope: category, HTTP status, and text code. Errors raised without
// one surface as CONNECTOR_INTERNAL with a generic message so upstream
// detail never reaches the client.
func connectorErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureConnectorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "account not found"):
		return NewAccountNotFoundError(err.Error())
	case strings.Contains(msg, "state token"), strings.Contains(msg, "state expired"):
		return NewStateInvalidError(err.Error())
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return ensureConnectorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureConnectorEnvelope(mapped)
}

func ensureConnectorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = connectorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultConnectorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultConnectorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ConnectorErrorInvalidAction
	case goerrors.CategoryNotFound:
		return ConnectorErrorAccountNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ConnectorErrorUnauthorized
	default:
		return ConnectorErrorInternal
	}
}

func connectorHTTPStatus(category goerrors.Category) int {
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
	default:
		return http.StatusInternalServerError
	}
}
