package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DoJSON 执行 JSON 请求并统一映射错误，供生成、嵌入与重排适配器共用。
func DoJSON(ctx context.Context, client *http.Client, provider, method, url string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{
				Code:       ErrUpstreamTimeout,
				Message:    err.Error(),
				HTTPStatus: http.StatusGatewayTimeout,
				Retryable:  errors.Is(ctx.Err(), context.DeadlineExceeded),
				Provider:   provider,
			}
		}
		return nil, &Error{
			Code:       ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   provider,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, MapHTTPError(resp.StatusCode, string(respBody), provider)
	}
	return respBody, nil
}

// MapHTTPError 将 HTTP 状态映射为 llm.Error。
func MapHTTPError(status int, msg, provider string) *Error {
	code := ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = ErrUnauthorized
	case http.StatusForbidden:
		code = ErrForbidden
	case http.StatusTooManyRequests:
		code = ErrRateLimited
		retryable = true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrUpstreamTimeout
		retryable = true
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = ErrInvalidRequest
	}

	return &Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// IsUpstreamFailure 判断错误是否反映上游不可用，用于熔断计数.
// 调用方取消与参数类错误不计入.
func IsUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || IsRetryable(err)
}

// IsRetryable reports whether err is an upstream error marked retryable.
// Errors that are not *Error are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}
