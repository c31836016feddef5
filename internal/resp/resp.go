// Package resp 提供统一的 HTTP JSON 响应封装。
package resp

import (
	"encoding/json"
	"net/http"
)

// 业务响应码，与 HTTP 状态码解耦；0 表示成功。
const (
	CodeOK            = 0
	CodeInvalidParam  = 1001
	CodeNotFound      = 1002
	CodeConflict      = 1003
	CodeTimeout       = 1004
	CodeInternalError = 2001
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// HTTPStatusFromCode 将业务码映射为 HTTP 状态码。
func HTTPStatusFromCode(code int) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON 写出 JSON 响应体。
func WriteJSON(w http.ResponseWriter, status int, body *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK 写出成功响应。
func OK(w http.ResponseWriter, data interface{}, requestID, traceID string) {
	WriteJSON(w, http.StatusOK, &Response{
		Code:      CodeOK,
		Message:   "ok",
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

// Error 写出错误响应；httpStatus 决定状态码，code 为业务码。
func Error(w http.ResponseWriter, httpStatus, code int, message, requestID, traceID string) {
	WriteJSON(w, httpStatus, &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		TraceID:   traceID,
	})
}
