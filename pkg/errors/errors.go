package errors

import "errors"

func (d Definition) Error() string {
	return d.Message
}

// Is 按错误码比较，便于 errors.Is(err, ValidationFailed) 命中带字段的校验错误。
func (d Definition) Is(target error) bool {
	var t Definition
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == d.Code
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
	Field   string // 校验失败时指明出错字段
}

// WithField 返回指明出错字段的副本。
func (d Definition) WithField(field string) Definition {
	d.Field = field
	return d
}

// WithMessage 返回替换提示信息的副本。
func (d Definition) WithMessage(message string) Definition {
	d.Message = message
	return d
}

// 通用错误。
var (
	InvalidRequest    = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized      = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	TooManyRequests   = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	TransactionFailed = Definition{Code: "TRANSACTION_FAILED", Message: "Transaction failed, please retry"}
)

// 行程编排错误。
var (
	ValidationFailed = Definition{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	AccessDenied     = Definition{Code: "ACCESS_DENIED", Message: "Access denied. You are not allowed to modify this trip"}
	TripNotFound     = Definition{Code: "TRIP_NOT_FOUND", Message: "Trip not found"}
	ItemNotFound     = Definition{Code: "ITEM_NOT_FOUND", Message: "Itinerary item not found"}
	DayNotFound      = Definition{Code: "DAY_NOT_FOUND", Message: "Itinerary day not found"}
	InvalidTripID    = Definition{Code: "INVALID_TRIP_ID", Message: "Invalid trip ID format"}
	InvalidItemID    = Definition{Code: "INVALID_ITEM_ID", Message: "Invalid item ID format"}
	InvalidUserID    = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
)

// 基础设施错误。
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrInvalidTokenType             = errors.New("invalid token type")
	ErrUserIDNotFound               = errors.New("user id not found in token")
	ErrDatabaseConnectionNil        = errors.New("database connection is nil")
)

// Validation 构造带字段的校验错误。
func Validation(field, message string) Definition {
	return ValidationFailed.WithField(field).WithMessage(message)
}
