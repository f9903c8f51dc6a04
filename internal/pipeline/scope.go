package pipeline

import "context"

// CallScope 远端调用所属的用户与会话，供适配器记录调用日志
type CallScope struct {
	OwnerID   string
	SessionID string
	VariantID string
}

type scopeKey struct{}

// WithCallScope 在 ctx 上挂载调用归属
func WithCallScope(ctx context.Context, scope CallScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// CallScopeFrom 读取调用归属，未设置时返回零值
func CallScopeFrom(ctx context.Context) CallScope {
	scope, _ := ctx.Value(scopeKey{}).(CallScope)
	return scope
}

func (s *PipelineSession) scope() CallScope {
	return CallScope{OwnerID: s.OwnerID, SessionID: s.ID, VariantID: s.Identity.VariantID}
}
