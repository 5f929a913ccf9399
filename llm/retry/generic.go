package retry

import "context"

// DoWithResultTyped 在 Retryer 下执行带类型返回值的调用，
// 检索、嵌入、重排与生成都通过它复用同一退避策略。
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if r == nil {
		return fn()
	}
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	out, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}
