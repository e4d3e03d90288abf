package middleware

import "context"

type contextKey string

const ctxOperator contextKey = "operator"

// OperatorFromContext returns the authenticated operator subject, if any.
func OperatorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOperator).(string); ok {
		return v
	}
	return ""
}
