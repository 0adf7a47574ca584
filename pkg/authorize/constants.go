package authorize

import "github.com/Alijeyrad/tabib_backend/pkg/constants"

type Action string
type Resource string
type Role string
type Domain string

// ----------------------------
// Actions
// ----------------------------

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionList   Action = "list"

	ActionManage  Action = "manage"  // CRUD + list
	ActionExecute Action = "execute" // run an AI analysis, process a payment

	// Lifecycle actions
	ActionHold     Action = "hold"
	ActionComplete Action = "complete"
	ActionReview   Action = "review"

	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

const (
	WildcardAction Action = "*"
)

var KnownActions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionUpdate: {}, ActionList: {},
	ActionManage: {}, ActionExecute: {},
	ActionHold: {}, ActionComplete: {}, ActionReview: {},
	ActionGrant: {}, ActionRevoke: {},
}

// ----------------------------
// Resources
// ----------------------------

const (
	WildcardResource Resource = "*"

	ResourceAuthSession Resource = "auth_session"
	ResourceStaff       Resource = "staff"

	// Clinical records
	ResourcePatient      Resource = "patient"
	ResourceVisit        Resource = "visit"
	ResourceDiagnosis    Resource = "diagnosis"
	ResourcePrescription Resource = "prescription"
	ResourceTemplate     Resource = "prescription_template"
	ResourceConsult      Resource = "consult"

	// Lab and cashier
	ResourceLabRequest Resource = "lab_request"
	ResourcePayment    Resource = "payment"
	ResourceReport     Resource = "report"

	ResourceAssistant Resource = "assistant"
	ResourceFeed      Resource = "feed"

	ResourceSystem Resource = "system"
	ResourceRBAC   Resource = "rbac"
)

var KnownResources = map[Resource]struct{}{
	ResourceAuthSession: {}, ResourceStaff: {},
	ResourcePatient: {}, ResourceVisit: {}, ResourceDiagnosis: {},
	ResourcePrescription: {}, ResourceTemplate: {}, ResourceConsult: {},
	ResourceLabRequest: {}, ResourcePayment: {}, ResourceReport: {},
	ResourceAssistant: {}, ResourceFeed: {},
	ResourceSystem: {}, ResourceRBAC: {},
}

// ----------------------------
// Roles
// ----------------------------
//
// These are the policy subjects staff are grouped under.

const (
	WildcardRole Role = "*"

	// Platform role (domain = sys)
	RoleSysSuperAdmin Role = "role:sys:superadmin"

	// Clinic roles (domain = clinic)
	RoleClinicAdmin     Role = "role:clinic:admin"
	RoleClinicReception Role = "role:clinic:reception"
	RoleClinicDoctor    Role = "role:clinic:doctor"
	RoleClinicLab       Role = "role:clinic:lab"
	RoleClinicReviewer  Role = "role:clinic:reviewer"
)

var KnownRoles = map[Role]struct{}{
	RoleSysSuperAdmin:   {},
	RoleClinicAdmin:     {},
	RoleClinicReception: {},
	RoleClinicDoctor:    {},
	RoleClinicLab:       {},
	RoleClinicReviewer:  {},
}

// Persian display names
var RoleDisplayNamesFA = map[Role]string{
	RoleSysSuperAdmin:   "مدیر سامانه",
	RoleClinicAdmin:     "مدیر درمانگاه",
	RoleClinicReception: "پذیرش و صندوق",
	RoleClinicDoctor:    "پزشک",
	RoleClinicLab:       "آزمایشگاه",
	RoleClinicReviewer:  "پزشک مشاور",
}

// StaffRoleToRBACRole maps the staff.role column to casbin roles.
var StaffRoleToRBACRole = map[string]Role{
	"admin":     RoleClinicAdmin,
	"reception": RoleClinicReception,
	"doctor":    RoleClinicDoctor,
	"lab":       RoleClinicLab,
	"reviewer":  RoleClinicReviewer,
}

// ----------------------------
// Domains
// ----------------------------

const (
	DomainSys    Domain = constants.SystemDomain
	DomainClinic Domain = constants.ClinicDomain
)

const (
	WildcardDomain Domain = "*"
)

// IsValidDomain checks whether d is a recognised domain string.
func IsValidDomain(d Domain) bool {
	switch d {
	case DomainSys, DomainClinic, WildcardDomain:
		return true
	}
	return false
}

// ----------------------------
// Casbin tuple helpers
// ----------------------------

type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// GroupSubject is the g.sub in Casbin: a concrete staff id.
type GroupSubject string

// Grouping rows: g, staff_id, role, domain
type GroupingPolicy struct {
	Subject GroupSubject
	Role    Role
	Domain  Domain
}

// Permission rows: p, role, domain, resource, action, eft
type PermissionPolicy struct {
	Subject Role
	Domain  Domain
	Object  Resource
	Action  Action
	Effect  PolicyEffect
}
