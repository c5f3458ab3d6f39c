package oauth

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by the errors this package returns.
const (
	TextCodeStorage           = "OAUTH_STORAGE_ERROR"
	TextCodeMetadataCorrupt   = "OAUTH_METADATA_CORRUPT"
	TextCodeInvalidToken      = "invalid_token"
	TextCodeInvalidRequest    = "invalid_request"
	TextCodeInsufficientScope = "insufficient_scope"
)

// Port-level signals. Stores return these; the query adapters translate
// ErrNotFound into an absent result.
var (
	ErrNotFound  = errors.New("oauth: record not found")
	ErrDuplicate = errors.New("oauth: record already exists")
)

// StorageError wraps a persistence fault so it can never be mistaken for
// an ordinary "not found" or "not allowed" outcome.
func StorageError(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsStorageError(err) || IsMetadataCorrupt(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeStorage)
}

// MetadataCorruptError reports stored client metadata that cannot be read
// as a metadata object.
func MetadataCorruptError(clientID string, err error) error {
	metadata := map[string]any{"client_id": clientID}
	var out *goerrors.Error
	if err == nil {
		out = goerrors.New("client metadata is corrupt", goerrors.CategoryInternal)
	} else {
		out = goerrors.Wrap(err, goerrors.CategoryInternal, "client metadata is corrupt")
	}
	out = out.WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeMetadataCorrupt)
	out.WithMetadata(metadata)
	return out
}

// IsStorageError reports whether err carries a storage fault.
func IsStorageError(err error) bool {
	return hasTextCode(err, TextCodeStorage)
}

// IsMetadataCorrupt reports whether err carries a corrupt metadata fault.
func IsMetadataCorrupt(err error) bool {
	return hasTextCode(err, TextCodeMetadataCorrupt)
}

// ValidationTextCode returns the RFC 6750 error code carried by a bearer
// validation error, or "" when err is not one.
func ValidationTextCode(err error) string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return ""
	}
	switch rich.TextCode {
	case TextCodeInvalidToken, TextCodeInvalidRequest, TextCodeInsufficientScope:
		return rich.TextCode
	}
	return ""
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

func bearerError(message string, category goerrors.Category, status int, textCode string) error {
	return goerrors.New(message, category).
		WithCode(status).
		WithTextCode(textCode)
}

func validationError(message string) error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode("OAUTH_INVALID_RECORD")
}
