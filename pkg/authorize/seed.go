package authorize

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultPolicies is the baseline permission matrix of the clinic.
func DefaultPolicies() []PermissionPolicy {
	d := DomainClinic
	return []PermissionPolicy{
		{RoleSysSuperAdmin, DomainSys, WildcardResource, WildcardAction, EffectAllow},

		// Admin runs the clinic: staff, reports and everything clinical.
		{RoleClinicAdmin, d, WildcardResource, WildcardAction, EffectAllow},

		// Reception registers patients, opens visits and works the cash desk.
		{RoleClinicReception, d, ResourcePatient, ActionManage, EffectAllow},
		{RoleClinicReception, d, ResourceVisit, ActionCreate, EffectAllow},
		{RoleClinicReception, d, ResourceVisit, ActionRead, EffectAllow},
		{RoleClinicReception, d, ResourceVisit, ActionList, EffectAllow},
		{RoleClinicReception, d, ResourcePayment, ActionManage, EffectAllow},
		{RoleClinicReception, d, ResourcePayment, ActionExecute, EffectAllow},
		{RoleClinicReception, d, ResourceLabRequest, ActionList, EffectAllow},
		{RoleClinicReception, d, ResourceReport, ActionRead, EffectAllow},
		{RoleClinicReception, d, ResourceFeed, ActionRead, EffectAllow},

		// Doctors run visits end to end.
		{RoleClinicDoctor, d, ResourcePatient, ActionManage, EffectAllow},
		{RoleClinicDoctor, d, ResourceVisit, ActionManage, EffectAllow},
		{RoleClinicDoctor, d, ResourceVisit, ActionHold, EffectAllow},
		{RoleClinicDoctor, d, ResourceVisit, ActionComplete, EffectAllow},
		{RoleClinicDoctor, d, ResourceDiagnosis, ActionManage, EffectAllow},
		{RoleClinicDoctor, d, ResourcePrescription, ActionManage, EffectAllow},
		{RoleClinicDoctor, d, ResourceTemplate, ActionManage, EffectAllow},
		{RoleClinicDoctor, d, ResourceLabRequest, ActionCreate, EffectAllow},
		{RoleClinicDoctor, d, ResourceLabRequest, ActionRead, EffectAllow},
		{RoleClinicDoctor, d, ResourceConsult, ActionCreate, EffectAllow},
		{RoleClinicDoctor, d, ResourceConsult, ActionRead, EffectAllow},
		{RoleClinicDoctor, d, ResourceAssistant, ActionExecute, EffectAllow},
		{RoleClinicDoctor, d, ResourceFeed, ActionRead, EffectAllow},

		// Lab technicians serve the worklist.
		{RoleClinicLab, d, ResourceLabRequest, ActionManage, EffectAllow},
		{RoleClinicLab, d, ResourceLabRequest, ActionComplete, EffectAllow},
		{RoleClinicLab, d, ResourceAssistant, ActionExecute, EffectAllow},
		{RoleClinicLab, d, ResourceFeed, ActionRead, EffectAllow},

		// Reviewers answer the consult mailbox.
		{RoleClinicReviewer, d, ResourceConsult, ActionManage, EffectAllow},
		{RoleClinicReviewer, d, ResourceConsult, ActionReview, EffectAllow},
		{RoleClinicReviewer, d, ResourceDiagnosis, ActionManage, EffectAllow},
		{RoleClinicReviewer, d, ResourceAssistant, ActionExecute, EffectAllow},
		{RoleClinicReviewer, d, ResourcePatient, ActionRead, EffectAllow},
		{RoleClinicReviewer, d, ResourceVisit, ActionRead, EffectAllow},
		{RoleClinicReviewer, d, ResourceFeed, ActionRead, EffectAllow},
	}
}

// SeedDefaultPolicies installs DefaultPolicies. Existing rows are left alone.
func SeedDefaultPolicies(ctx context.Context, auth IAuthorization) error {
	policies := DefaultPolicies()
	for _, p := range policies {
		added, err := auth.AddPermission(ctx, p.Subject, p.Domain, p.Object, p.Action, p.Effect)
		if err != nil {
			return fmt.Errorf("seed policy %s %s %s: %w", p.Subject, p.Object, p.Action, err)
		}
		if added {
			slog.Debug("authorize: policy added", "role", p.Subject, "domain", p.Domain, "resource", p.Object, "action", p.Action)
		}
	}

	slog.Info("authorize: default policies seeded", "count", len(policies))
	return nil
}

// AssignStaffRole groups a staff member under the casbin role matching their
// staff.role value. Previous clinic roles are removed first so a role change
// does not accumulate grants.
func AssignStaffRole(ctx context.Context, auth IAuthorization, staffID, staffRole string) error {
	role, ok := StaffRoleToRBACRole[staffRole]
	if !ok {
		return fmt.Errorf("%w: unknown staff role %q", ErrInvalidArgs, staffRole)
	}
	subject := GroupSubject(staffID)

	current, err := auth.GetRolesForUserInDomain(ctx, subject, DomainClinic)
	if err != nil {
		return err
	}
	for _, r := range current {
		if r == role {
			return nil
		}
		if _, err := auth.RemoveRoleForUserInDomain(ctx, subject, r, DomainClinic); err != nil {
			return err
		}
	}

	_, err = auth.AddRoleForUserInDomain(ctx, subject, role, DomainClinic)
	return err
}

// RevokeStaffRoles removes every clinic role of a deactivated staff member.
func RevokeStaffRoles(ctx context.Context, auth IAuthorization, staffID string) error {
	subject := GroupSubject(staffID)
	current, err := auth.GetRolesForUserInDomain(ctx, subject, DomainClinic)
	if err != nil {
		return err
	}
	for _, r := range current {
		if _, err := auth.RemoveRoleForUserInDomain(ctx, subject, r, DomainClinic); err != nil {
			return err
		}
	}
	return nil
}

// AssignSuperAdmin grants the sys superadmin role. Used by `system seed`.
func AssignSuperAdmin(ctx context.Context, auth IAuthorization, staffID string) error {
	_, err := auth.AddRoleForUserInDomain(ctx, GroupSubject(staffID), RoleSysSuperAdmin, DomainSys)
	return err
}
