package dto

// ErrorCode is the stable machine-readable part of an error response.
type ErrorCode string

const (
	ErrorCodeInvalidCredentials ErrorCode = "AUTH_001"
	ErrorCodeInvalidToken       ErrorCode = "AUTH_005"
	ErrorCodeExpiredToken       ErrorCode = "AUTH_006"
	ErrorCodeUnauthorized       ErrorCode = "AUTH_008"
	ErrorCodeInvalidOTP         ErrorCode = "AUTH_009"
	ErrorCodeExpiredOTP         ErrorCode = "AUTH_010"
	ErrorCodeResetNotVerified   ErrorCode = "AUTH_011"
	ErrorCodeForbidden          ErrorCode = "AUTH_012"

	ErrorCodeResourceNotFound ErrorCode = "RES_001"
	ErrorCodeConflict         ErrorCode = "RES_004"

	ErrorCodeValidationFailed ErrorCode = "VAL_001"
	ErrorCodeBadRequest       ErrorCode = "VAL_002"

	ErrorCodeInternalServer     ErrorCode = "SRV_001"
	ErrorCodeStorageUnavailable ErrorCode = "SRV_004"
)

// ErrorDetail is the error member of a failed APIResponse.
type ErrorDetail struct {
	Code    ErrorCode   `json:"code" example:"VAL_001"`
	Message string      `json:"message" example:"title is required"`
	Field   string      `json:"field,omitempty" example:"title"`
	Details interface{} `json:"details,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewErrorDetail(code ErrorCode, message string) *ErrorDetail {
	return &ErrorDetail{Code: code, Message: message}
}

// WithField points the error at a single request field.
func (e *ErrorDetail) WithField(field string) *ErrorDetail {
	e.Field = field
	return e
}

func (e *ErrorDetail) WithDetails(details interface{}) *ErrorDetail {
	e.Details = details
	return e
}
