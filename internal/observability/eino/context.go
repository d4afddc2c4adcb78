package eino

import "context"

type providerKey struct{}

// WithProvider 在 Context 中记录本次调用的 LLM 提供商名
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey{}, provider)
}

// ProviderFromContext 读取提供商名，未设置时返回空串
func ProviderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(providerKey{}).(string); ok {
		return v
	}
	return ""
}
