// Package response renders the unified {code, message, data} envelope.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
)

type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success responds 200 with data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Created responds 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error renders err with the status its code maps to.
func Error(c *gin.Context, err error) {
	ErrorWithStatus(c, apperrors.HTTPStatus(err), err)
}

// ErrorWithStatus renders err with an explicit status.
func ErrorWithStatus(c *gin.Context, status int, err error) {
	c.JSON(status, Response{
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
		Data:    nil,
	})
}

// InvalidParams responds 400 with a specific message.
func InvalidParams(c *gin.Context, message string) {
	Error(c, apperrors.ErrInvalidParams.WithMessage(message))
}

// Unauthorized responds 401.
func Unauthorized(c *gin.Context, err error) {
	if err == nil {
		err = apperrors.ErrTokenInvalid
	}
	ErrorWithStatus(c, http.StatusUnauthorized, err)
}
