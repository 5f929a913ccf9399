package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey      contextKey = "request_id"
	conversationIDKey contextKey = "conversation_id"
	clientKey         contextKey = "client"
	reviewerKey       contextKey = "reviewer"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithConversationID 设置会话 ID
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationID 获取会话 ID
func ConversationID(ctx context.Context) (string, bool) {
	return stringValue(ctx, conversationIDKey)
}

// WithClient 设置通过认证的客户端标识（API Key 的脱敏形式）
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// Client 获取客户端标识
func Client(ctx context.Context) (string, bool) {
	return stringValue(ctx, clientKey)
}

// WithReviewer 设置通过 JWT 认证的纠错提交人
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, reviewerKey, reviewer)
}

// Reviewer 获取纠错提交人
func Reviewer(ctx context.Context) (string, bool) {
	return stringValue(ctx, reviewerKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
