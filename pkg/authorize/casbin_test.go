package authorize

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	casbin "github.com/casbin/casbin/v2"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/pkg/reqctx"
)

// createTestEnforcer builds a file-backed enforcer on the shipped model.
func createTestEnforcer(t *testing.T) *casbin.DistributedEnforcer {
	t.Helper()

	tmpDir := t.TempDir()
	policyPath := filepath.Join(tmpDir, "policy.csv")
	if err := os.WriteFile(policyPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	e, err := NewFileEnforcer(Config{
		CasbinModelPath: filepath.Join("..", "..", "config", "casbin_model.conf"),
		PolicyPath:      policyPath,
	})
	if err != nil {
		t.Fatalf("failed to create enforcer: %v", err)
	}
	return e
}

func newSeededAuth(t *testing.T) IAuthorization {
	t.Helper()

	auth, err := NewAuthorization(createTestEnforcer(t), Config{SuperadminBypass: true})
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	if err := SeedDefaultPolicies(context.Background(), auth); err != nil {
		t.Fatalf("SeedDefaultPolicies: %v", err)
	}
	return auth
}

func TestNewAuthorization(t *testing.T) {
	t.Run("returns error for nil enforcer", func(t *testing.T) {
		if _, err := NewAuthorization(nil, DefaultConfig()); err == nil {
			t.Error("Expected error for nil enforcer")
		}
	})

	t.Run("succeeds with valid enforcer", func(t *testing.T) {
		auth, err := NewAuthorization(createTestEnforcer(t), DefaultConfig())
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		if auth == nil {
			t.Error("Expected non-nil authorization")
		}
	})
}

func TestSeededRoleMatrix(t *testing.T) {
	auth := newSeededAuth(t)
	ctx := context.Background()

	staff := map[string]string{
		"reception": uuid.NewString(),
		"doctor":    uuid.NewString(),
		"lab":       uuid.NewString(),
		"reviewer":  uuid.NewString(),
		"admin":     uuid.NewString(),
	}
	for role, id := range staff {
		if err := AssignStaffRole(ctx, auth, id, role); err != nil {
			t.Fatalf("AssignStaffRole(%s): %v", role, err)
		}
	}

	tests := []struct {
		role     string
		resource Resource
		action   Action
		want     bool
	}{
		{"reception", ResourcePatient, ActionCreate, true},
		{"reception", ResourceVisit, ActionCreate, true},
		{"reception", ResourcePayment, ActionExecute, true},
		{"reception", ResourceVisit, ActionComplete, false},
		{"reception", ResourceConsult, ActionReview, false},
		{"doctor", ResourceVisit, ActionHold, true},
		{"doctor", ResourceVisit, ActionComplete, true},
		{"doctor", ResourceLabRequest, ActionCreate, true},
		{"doctor", ResourceLabRequest, ActionComplete, false},
		{"doctor", ResourcePayment, ActionExecute, false},
		{"doctor", ResourceConsult, ActionRead, true},
		{"doctor", ResourceConsult, ActionReview, false},
		{"lab", ResourceLabRequest, ActionComplete, true},
		{"lab", ResourceLabRequest, ActionList, true},
		{"lab", ResourceVisit, ActionComplete, false},
		{"reviewer", ResourceConsult, ActionReview, true},
		{"reviewer", ResourceDiagnosis, ActionUpdate, true},
		{"reviewer", ResourcePayment, ActionRead, false},
		{"admin", ResourceStaff, ActionManage, true},
		{"admin", ResourceReport, ActionRead, true},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+string(tt.resource)+"/"+string(tt.action), func(t *testing.T) {
			got, err := auth.Enforce(ctx, GroupSubject(staff[tt.role]), DomainClinic, tt.resource, tt.action)
			if err != nil {
				t.Fatalf("Enforce: %v", err)
			}
			if got != tt.want {
				t.Errorf("Enforce() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnforceRejectsInvalidArgs(t *testing.T) {
	auth := newSeededAuth(t)
	ctx := context.Background()
	subject := GroupSubject(uuid.NewString())

	tests := []struct {
		name     string
		subject  GroupSubject
		domain   Domain
		resource Resource
		action   Action
	}{
		{"empty subject", "", DomainClinic, ResourceVisit, ActionRead},
		{"invalid domain", subject, Domain("invalid"), ResourceVisit, ActionRead},
		{"unknown resource", subject, DomainClinic, Resource("unknown"), ActionRead},
		{"unknown action", subject, DomainClinic, ResourceVisit, Action("unknown")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Enforce(ctx, tt.subject, tt.domain, tt.resource, tt.action)
			if !errors.Is(err, ErrInvalidArgs) {
				t.Errorf("expected ErrInvalidArgs, got %v", err)
			}
		})
	}
}

func TestSuperAdminBypass(t *testing.T) {
	auth := newSeededAuth(t)
	ctx := context.Background()
	adminID := uuid.NewString()

	if err := AssignSuperAdmin(ctx, auth, adminID); err != nil {
		t.Fatalf("AssignSuperAdmin: %v", err)
	}

	allowed, err := auth.Enforce(ctx, GroupSubject(adminID), DomainClinic, ResourcePayment, ActionExecute)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Error("Expected superadmin to be allowed")
	}
}

func TestAssignStaffRoleReplacesPrevious(t *testing.T) {
	auth := newSeededAuth(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := AssignStaffRole(ctx, auth, id, "reception"); err != nil {
		t.Fatal(err)
	}
	if err := AssignStaffRole(ctx, auth, id, "doctor"); err != nil {
		t.Fatal(err)
	}

	roles, err := auth.GetRolesForUserInDomain(ctx, GroupSubject(id), DomainClinic)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0] != RoleClinicDoctor {
		t.Errorf("roles = %v, want [%s]", roles, RoleClinicDoctor)
	}

	if err := RevokeStaffRoles(ctx, auth, id); err != nil {
		t.Fatal(err)
	}
	if err := auth.MustEnforce(ctx, GroupSubject(id), DomainClinic, ResourceVisit, ActionHold); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden after revoke, got %v", err)
	}

	if err := AssignStaffRole(ctx, auth, id, "janitor"); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs for unknown staff role, got %v", err)
	}
}

type testClaims struct{ id uuid.UUID }

func (c testClaims) GetUserID() uuid.UUID     { return c.id }
func (c testClaims) GetRole() string          { return "doctor" }
func (c testClaims) GetSessionID() *uuid.UUID { return nil }
func (c testClaims) GetTokenType() string     { return "access" }
func (c testClaims) IsExpired() bool          { return false }

func TestEnforceContext(t *testing.T) {
	auth := newSeededAuth(t)
	id := uuid.New()
	if err := AssignStaffRole(context.Background(), auth, id.String(), "doctor"); err != nil {
		t.Fatal(err)
	}

	if err := EnforceContext(context.Background(), auth, ResourceVisit, ActionRead); !errors.Is(err, ErrNoSubjectInContext) {
		t.Errorf("expected ErrNoSubjectInContext, got %v", err)
	}

	ctx := reqctx.WithClaims(context.Background(), testClaims{id: id})
	if err := EnforceContext(ctx, auth, ResourceVisit, ActionComplete); err != nil {
		t.Errorf("doctor should complete visits: %v", err)
	}
}

func TestRoleDisplayNamesFA(t *testing.T) {
	for role := range KnownRoles {
		if name, ok := RoleDisplayNamesFA[role]; !ok || name == "" {
			t.Errorf("Expected role %q to have a Persian display name", role)
		}
	}
}

func TestAuditedAuthorization(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	auth := NewAuditedAuthorization(newSeededAuth(t), logger)
	ctx := context.Background()

	id := uuid.NewString()
	if err := AssignStaffRole(ctx, auth, id, "lab"); err != nil {
		t.Fatalf("AssignStaffRole: %v", err)
	}
	if !strings.Contains(buf.String(), `"operation":"grant_role"`) {
		t.Errorf("grant not audited: %s", buf.String())
	}

	buf.Reset()
	err := auth.MustEnforce(ctx, GroupSubject(id), DomainClinic, ResourcePayment, ActionExecute)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("MustEnforce() = %v, want ErrForbidden", err)
	}
	if !strings.Contains(buf.String(), "authorize: denied") {
		t.Errorf("denial not audited: %s", buf.String())
	}

	buf.Reset()
	if err := auth.MustEnforce(ctx, GroupSubject(id), DomainClinic, ResourceLabRequest, ActionComplete); err != nil {
		t.Fatalf("MustEnforce() = %v", err)
	}
	if !strings.Contains(buf.String(), `"allowed":true`) {
		t.Errorf("allowed decision not logged at debug: %s", buf.String())
	}
}
