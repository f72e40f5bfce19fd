package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument     = 1000
	ErrCodeInvalidJSON         = 1001
	ErrCodeRequestTooLarge     = 1002
	ErrCodeInvalidQuery        = 1003
	ErrCodeInvalidID           = 1004
	ErrCodeInvalidKind         = 1005
	ErrCodeInvalidSlot         = 1006
	ErrCodeMissingRequired     = 1009
	ErrCodeInvalidBase64       = 1015
	ErrCodePayloadTooLarge     = 1016
	ErrCodeUnsupportedMedia    = 1017
	ErrCodeInvalidMultipart    = 1018
	ErrCodeInvalidPrecondition = 1019

	// Domain state (2xxx)
	ErrCodeRecordNotFound     = 2001
	ErrCodeAttachmentNotFound = 2003
	ErrCodeTokenNotFound      = 2005
	ErrCodeConflict           = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeNotOwner          = 3004

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeStorageWrite   = 4006
	ErrCodeStorageRead    = 4007
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeRecordNotFound
	case 409:
		return ErrCodeConflict
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
