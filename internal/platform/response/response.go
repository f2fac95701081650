// Package response writes the uniform JSON envelope:
// {success, data | error:{kind,message}, meta?}.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

// Envelope is the body of every response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    any        `json:"meta,omitempty"`
}

// ErrorBody carries the taxonomy kind and a caller-safe message.
type ErrorBody struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// PageMeta describes a paginated list.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"total_pages"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes 200 with a list and page metadata. A nil list is
// rendered as an empty array.
func Paginated[T any](c *gin.Context, items []T, total int64, page, limit int) {
	if items == nil {
		items = []T{}
	}
	var pages int64
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    items,
		Meta:    PageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages},
	})
}

// BadRequest writes 400 InvalidPayload.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, domain.KindInvalidPayload, message)
}

// Error maps err to its status code and writes the error envelope. Causes
// and non-domain errors are never rendered.
func Error(c *gin.Context, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		abort(c, http.StatusInternalServerError, domain.KindInternal, "internal error")
		return
	}
	message := de.Message
	if message == "" {
		message = string(de.Kind)
	}
	abort(c, StatusFor(de.Kind), de.Kind, message)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindMissingToken, domain.KindInvalidToken:
		return http.StatusUnauthorized
	case domain.KindInsufficientScope, domain.KindTenantMismatch:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidPayload, domain.KindInvalidTimeframe:
		return http.StatusBadRequest
	case domain.KindInvalidTransition, domain.KindConflict, domain.KindIdempotencyConflict:
		return http.StatusConflict
	case domain.KindGatewayNotConfigured, domain.KindUnsupportedOperation:
		return http.StatusUnprocessableEntity
	case domain.KindGatewayDeclined:
		return http.StatusPaymentRequired
	case domain.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, kind domain.Kind, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Kind: kind, Message: message},
	})
}
