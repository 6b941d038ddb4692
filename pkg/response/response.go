package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"TripMate/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

const internalErrorMessage = "Internal server error"

// StatusFor 业务错误码到 HTTP 状态码
func StatusFor(err error) int {
	var def errors.Definition
	if !stderrors.As(err, &def) {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.ValidationFailed.Code, errors.InvalidRequest.Code,
		errors.InvalidTripID.Code, errors.InvalidItemID.Code, errors.InvalidUserID.Code:
		return http.StatusBadRequest
	case errors.Unauthorized.Code:
		return http.StatusUnauthorized
	case errors.AccessDenied.Code:
		return http.StatusForbidden
	case errors.TripNotFound.Code, errors.ItemNotFound.Code, errors.DayNotFound.Code:
		return http.StatusNotFound
	case errors.TooManyRequests.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error 返回错误响应，非业务错误不向调用方暴露内部信息
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: internalErrorMessage,
		Details: details,
	}

	var def errors.Definition
	if stderrors.As(err, &def) {
		detail.Code = def.Code
		detail.Message = def.Message
		if def.Field != "" {
			if detail.Details == nil {
				detail.Details = make(map[string]interface{}, 1)
			}
			detail.Details["field"] = def.Field
		}
	}

	c.JSON(StatusFor(err), ErrorResponse{Error: detail})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

// Created 返回 201
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
