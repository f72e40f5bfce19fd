package attach

import "errors"

var (
	// ErrDecode reports a malformed base64 payload.
	ErrDecode = errors.New("malformed base64 payload")
	// ErrPayloadTooLarge reports an upload over the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrUnsupportedMediaType reports a content type outside the allow-list.
	ErrUnsupportedMediaType = errors.New("media type is not allowed")
	// ErrInvalidSlot reports a slot the record kind does not have.
	ErrInvalidSlot = errors.New("invalid slot for record kind")
	// ErrUnauthorized reports a mutation attempted by someone other than the owner.
	ErrUnauthorized = errors.New("caller does not own the record")
	// ErrRecordNotFound reports that the owning record does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNotFound reports that there is nothing to serve for the request.
	ErrNotFound = errors.New("attachment not found")
	// ErrReadFailure reports a transient storage failure while reading.
	ErrReadFailure = errors.New("attachment read failed")
	// ErrVersionConflict reports a stale expected record version.
	ErrVersionConflict = errors.New("record version conflict")
)
