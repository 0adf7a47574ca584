// Package reqctx carries request-scoped data through context.Context:
// request metadata set by the HTTP middleware, verified token claims and
// the active trace.
//
// Setting values (typically in middleware):
//
//	ctx = reqctx.WithRequestMeta(ctx, &reqctx.RequestMeta{RequestID: rid})
//	ctx = reqctx.WithClaims(ctx, claims)
//
// Reading them (in services, loggers):
//
//	logger.InfoContext(ctx, "visit: created", reqctx.LogAttrs(ctx)...)
//
// RequestMeta is always set for HTTP requests. Claims are set only for
// authenticated requests.
package reqctx
