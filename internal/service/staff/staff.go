package staff

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

var reUsername = regexp.MustCompile(`^[a-z0-9._-]{3,32}$`)

const generatedPasswordLength = 16

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type CreateStaffRequest struct {
	FullName string         `json:"full_name"`
	Username string         `json:"username"`
	Password string         `json:"password,omitempty"`
	Role     repo.StaffRole `json:"role"`
}

// CreateStaffResult carries the generated password when none was supplied.
// It is shown once and never stored in clear.
type CreateStaffResult struct {
	Staff             *repo.Staff `json:"staff"`
	GeneratedPassword string      `json:"generated_password,omitempty"`
}

type UpdateStaffRequest struct {
	FullName *string         `json:"full_name,omitempty"`
	Role     *repo.StaffRole `json:"role,omitempty"`
}

type ListStaffRequest struct {
	Role       *repo.StaffRole
	ActiveOnly bool
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Create(ctx context.Context, caller repo.Caller, req CreateStaffRequest) (*CreateStaffResult, error)
	Get(ctx context.Context, id uuid.UUID) (*repo.Staff, error)
	List(ctx context.Context, req ListStaffRequest) ([]*repo.Staff, error)
	Doctors(ctx context.Context) ([]*repo.Staff, error)
	Update(ctx context.Context, caller repo.Caller, id uuid.UUID, req UpdateStaffRequest) (*repo.Staff, error)
	SetActive(ctx context.Context, caller repo.Caller, id uuid.UUID, active bool) (*repo.Staff, error)
	ResetPassword(ctx context.Context, caller repo.Caller, id uuid.UUID) (string, error)
}

type staffService struct {
	store  repo.Store
	authz  authorize.IAuthorization
	hasher *password.Hasher
	log    *slog.Logger
}

func New(store repo.Store, authz authorize.IAuthorization, hasher *password.Hasher, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &staffService{store: store, authz: authz, hasher: hasher, log: log}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func (s *staffService) Create(ctx context.Context, caller repo.Caller, req CreateStaffRequest) (*CreateStaffResult, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, ErrMissingName
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !reUsername.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.store.GetStaffByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !repo.IsNotFound(err) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	res := &CreateStaffResult{}
	pw := req.Password
	if pw == "" {
		pw = password.Generate(generatedPasswordLength)
		res.GeneratedPassword = pw
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	st := &repo.Staff{
		FullName:     name,
		Username:     username,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.store.CreateStaff(ctx, st); err != nil {
		if repo.IsConflict(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create staff: %w", err)
	}

	if err := s.grant(ctx, st); err != nil {
		return nil, err
	}

	s.log.Info("staff: created", "staff_id", st.ID, "role", st.Role, "by", caller.UserID)
	res.Staff = st
	return res, nil
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

func (s *staffService) Get(ctx context.Context, id uuid.UUID) (*repo.Staff, error) {
	st, err := s.store.GetStaff(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return st, nil
}

func (s *staffService) List(ctx context.Context, req ListStaffRequest) ([]*repo.Staff, error) {
	if req.Role != nil && !req.Role.Valid() {
		return nil, ErrInvalidRole
	}
	out, err := s.store.ListStaff(ctx, repo.StaffFilter{Role: req.Role, ActiveOnly: req.ActiveOnly})
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return out, nil
}

// Doctors lists active doctors for the visit intake picker.
func (s *staffService) Doctors(ctx context.Context) ([]*repo.Staff, error) {
	role := repo.RoleDoctor
	return s.List(ctx, ListStaffRequest{Role: &role, ActiveOnly: true})
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (s *staffService) Update(ctx context.Context, caller repo.Caller, id uuid.UUID, req UpdateStaffRequest) (*repo.Staff, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	roleChanged := false
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, ErrMissingName
		}
		st.FullName = name
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, ErrInvalidRole
		}
		roleChanged = st.Role != *req.Role
		st.Role = *req.Role
	}

	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return nil, fmt.Errorf("update staff: %w", err)
	}
	if roleChanged && st.Active {
		if err := s.grant(ctx, st); err != nil {
			return nil, err
		}
		s.log.Info("staff: role changed", "staff_id", st.ID, "role", st.Role, "by", caller.UserID)
	}
	return st, nil
}

// SetActive enables or disables an account. Disabled staff lose every
// clinic grant; their open sessions fail on the next refresh.
func (s *staffService) SetActive(ctx context.Context, caller repo.Caller, id uuid.UUID, active bool) (*repo.Staff, error) {
	if !active && caller.UserID == id {
		return nil, ErrSelfDeactivation
	}
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Active == active {
		return st, nil
	}

	st.Active = active
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return nil, fmt.Errorf("update staff: %w", err)
	}

	if active {
		err = s.grant(ctx, st)
	} else if s.authz != nil {
		err = authorize.RevokeStaffRoles(ctx, s.authz, st.ID.String())
		if err != nil {
			err = fmt.Errorf("revoke staff roles: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("staff: active changed", "staff_id", st.ID, "active", active, "by", caller.UserID)
	return st, nil
}

func (s *staffService) ResetPassword(ctx context.Context, caller repo.Caller, id uuid.UUID) (string, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	pw := password.Generate(generatedPasswordLength)
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return "", err
	}
	st.PasswordHash = hash
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return "", fmt.Errorf("update staff: %w", err)
	}
	s.log.Info("staff: password reset", "staff_id", st.ID, "by", caller.UserID)
	return pw, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *staffService) grant(ctx context.Context, st *repo.Staff) error {
	if s.authz == nil {
		return nil
	}
	if err := authorize.AssignStaffRole(ctx, s.authz, st.ID.String(), string(st.Role)); err != nil {
		return fmt.Errorf("assign staff role: %w", err)
	}
	return nil
}
