package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// permanentError 标记不可重试的业务性失败（例如 provider 明确报告任务失败）
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装一个错误，告知 withRetry 立即停止重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// withRetry 有界指数退避重试：delay = base * 2^(attempt-1)。
// 上下文取消或 Permanent 错误会立即终止。
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		delay := base << (attempt - 1)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

// isTransientStatus 可重试的 HTTP 状态：限流与服务端错误
func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
