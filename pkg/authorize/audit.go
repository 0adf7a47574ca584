package authorize

import (
	"context"
	"log/slog"
	"time"

	casbin "github.com/casbin/casbin/v2"

	"github.com/Alijeyrad/tabib_backend/pkg/reqctx"
)

// AuditedAuthorization writes an audit line for every decision and every
// grant or revocation made through the wrapped IAuthorization. Lines carry
// the request id and acting staff member when the context has them.
type AuditedAuthorization struct {
	inner  IAuthorization
	logger *slog.Logger
}

func NewAuditedAuthorization(inner IAuthorization, logger *slog.Logger) IAuthorization {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditedAuthorization{inner: inner, logger: logger.With("component", "authorize")}
}

// change logs a policy mutation at info, or at error when it failed.
func (a *AuditedAuthorization) change(ctx context.Context, op string, changed bool, err error, attrs ...any) {
	attrs = append(reqctx.LogAttrs(ctx), append([]any{"operation", op, "changed", changed}, attrs...)...)
	if err != nil {
		a.logger.ErrorContext(ctx, "authorize: policy change failed", append(attrs, "error", err.Error())...)
		return
	}
	a.logger.InfoContext(ctx, "authorize: policy change", attrs...)
}

func (a *AuditedAuthorization) Enforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) (bool, error) {
	start := time.Now()
	allowed, err := a.inner.Enforce(ctx, subject, domain, object, action)

	attrs := append(reqctx.LogAttrs(ctx),
		"subject", string(subject),
		"domain", string(domain),
		"resource", string(object),
		"action", string(action),
		"allowed", allowed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	switch {
	case err != nil:
		a.logger.ErrorContext(ctx, "authorize: decision", append(attrs, "error", err.Error())...)
	case !allowed:
		a.logger.WarnContext(ctx, "authorize: denied", attrs...)
	default:
		a.logger.DebugContext(ctx, "authorize: decision", attrs...)
	}
	return allowed, err
}

func (a *AuditedAuthorization) MustEnforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) error {
	ok, err := a.Enforce(ctx, subject, domain, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (a *AuditedAuthorization) AddRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	added, err := a.inner.AddRoleForUserInDomain(ctx, subject, role, domain)
	a.change(ctx, "grant_role", added, err, "subject", string(subject), "role", string(role), "domain", string(domain))
	return added, err
}

func (a *AuditedAuthorization) RemoveRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	removed, err := a.inner.RemoveRoleForUserInDomain(ctx, subject, role, domain)
	a.change(ctx, "revoke_role", removed, err, "subject", string(subject), "role", string(role), "domain", string(domain))
	return removed, err
}

func (a *AuditedAuthorization) GetRolesForUserInDomain(ctx context.Context, subject GroupSubject, domain Domain) ([]Role, error) {
	return a.inner.GetRolesForUserInDomain(ctx, subject, domain)
}

func (a *AuditedAuthorization) AddPermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	added, err := a.inner.AddPermission(ctx, role, domain, object, action, effect)
	a.change(ctx, "add_permission", added, err,
		"role", string(role), "domain", string(domain),
		"resource", string(object), "action", string(action), "effect", string(effect))
	return added, err
}

func (a *AuditedAuthorization) RemovePermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	removed, err := a.inner.RemovePermission(ctx, role, domain, object, action, effect)
	a.change(ctx, "remove_permission", removed, err,
		"role", string(role), "domain", string(domain),
		"resource", string(object), "action", string(action), "effect", string(effect))
	return removed, err
}

func (a *AuditedAuthorization) Raw() *casbin.DistributedEnforcer {
	return a.inner.Raw()
}
