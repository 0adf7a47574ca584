package authorize

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/pkg/reqctx"
)

var (
	ErrNoSubjectInContext = errors.New("no subject found in context")
)

// SubjectFromContext extracts the GroupSubject (staff id) from the verified
// claims in ctx.
func SubjectFromContext(ctx context.Context) (GroupSubject, error) {
	claims := reqctx.ClaimsFromContext(ctx)
	if claims == nil {
		return "", ErrNoSubjectInContext
	}
	id := claims.GetUserID()
	if id == uuid.Nil {
		return "", ErrNoSubjectInContext
	}
	return GroupSubject(id.String()), nil
}

// EnforceContext checks the permission of the subject carried by ctx in the
// clinic domain.
func EnforceContext(ctx context.Context, auth IAuthorization, object Resource, action Action) error {
	subject, err := SubjectFromContext(ctx)
	if err != nil {
		return err
	}
	return auth.MustEnforce(ctx, subject, DomainClinic, object, action)
}
