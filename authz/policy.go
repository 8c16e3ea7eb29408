// Package authz decides who may do what to grievances, users and the
// dashboard. Rules are expressed as casbin policy lines over the caller's
// role, the object kind, the action and the caller's relation to the object.
package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/rs/zerolog/log"

	"grievance-management-api/models"
)

// Object kinds.
const (
	ObjGrievance = "grievance"
	ObjUser      = "user"
	ObjCategory  = "category"
	ObjDashboard = "dashboard"
)

// Actions.
const (
	ActList            = "list"
	ActRead            = "read"
	ActCreate          = "create"
	ActUpdate          = "update"
	ActAssign          = "assign" // priority and assignee
	ActChangeStatus    = "change_status"
	ActDelete          = "delete"
	ActComment         = "comment"
	ActCommentInternal = "comment_internal"
	ActViewInternal    = "view_internal"
	ActAttach          = "attach"
	ActChangePassword  = "change_password"
	ActToggleStatus    = "toggle_status"
	ActManage          = "manage"
	ActStats           = "stats"
	ActRecent          = "recent"
	ActMonthly         = "monthly"
	ActPerformance     = "performance"
)

// Relations between a caller and an object.
const (
	RelOwner      = "owner"
	RelAssignee   = "assignee"
	RelUnassigned = "unassigned"
	RelSelf       = "self"
	RelOther      = "other"
	RelAny        = "*"
)

const modelText = `
[request_definition]
r = sub, obj, act, rel

[policy_definition]
p = sub, obj, act, rel

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (p.act == "*" || r.act == p.act) && (p.rel == "*" || r.rel == p.rel)
`

const policyText = `
# admin may do anything
p, admin, grievance, *, *
p, admin, user, *, *
p, admin, category, *, *
p, admin, dashboard, *, *

# staff
p, staff, grievance, list, *
p, staff, grievance, create, *
p, staff, grievance, read, owner
p, staff, grievance, read, assignee
p, staff, grievance, read, unassigned
p, staff, grievance, update, owner
p, staff, grievance, update, assignee
p, staff, grievance, update, unassigned
p, staff, grievance, assign, assignee
p, staff, grievance, assign, unassigned
p, staff, grievance, change_status, assignee
p, staff, grievance, change_status, unassigned
p, staff, grievance, comment, owner
p, staff, grievance, comment, assignee
p, staff, grievance, comment, unassigned
p, staff, grievance, comment_internal, assignee
p, staff, grievance, comment_internal, unassigned
p, staff, grievance, view_internal, *
p, staff, grievance, attach, owner
p, staff, grievance, attach, assignee
p, staff, grievance, attach, unassigned
p, staff, user, read, self
p, staff, user, update, self
p, staff, user, change_password, self
p, staff, category, list, *
p, staff, dashboard, stats, *
p, staff, dashboard, recent, *

# user
p, user, grievance, list, *
p, user, grievance, create, *
p, user, grievance, read, owner
p, user, grievance, update, owner
p, user, grievance, comment, owner
p, user, grievance, attach, owner
p, user, user, read, self
p, user, user, update, self
p, user, user, change_password, self
p, user, category, list, *
p, user, dashboard, stats, *
p, user, dashboard, recent, *
`

// Caller is the authenticated identity making a request.
type Caller struct {
	UserID uint
	Email  string
	Role   models.Role
}

func (c Caller) IsAdmin() bool { return c.Role == models.RoleAdmin }

// Resource is the object an action targets. Only the fields relevant to the
// object kind are set.
type Resource struct {
	Kind       string
	OwnerID    uint
	AssigneeID *uint
}

func Grievance(g *models.Grievance) Resource {
	return Resource{Kind: ObjGrievance, OwnerID: g.UserID, AssigneeID: g.AssignedTo}
}

func User(id uint) Resource {
	return Resource{Kind: ObjUser, OwnerID: id}
}

// Kind targets an object kind as a whole (listing, creating, dashboards).
func Kind(kind string) Resource {
	return Resource{Kind: kind}
}

// Policy is safe for concurrent use.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	rules, err := parsePolicy(policyText)
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// MustNewPolicy panics when the built-in policy cannot be loaded.
func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

func parsePolicy(text string) ([][]string, error) {
	var rules [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] != "p" || len(parts) != 5 {
			return nil, fmt.Errorf("malformed policy line %q", line)
		}
		rules = append(rules, parts[1:])
	}
	return rules, nil
}

// Relations lists every relation the caller has with the resource.
func Relations(caller Caller, res Resource) []string {
	switch res.Kind {
	case ObjGrievance:
		if res.OwnerID == 0 && res.AssigneeID == nil {
			return []string{RelAny}
		}
		var rels []string
		if res.OwnerID == caller.UserID {
			rels = append(rels, RelOwner)
		}
		if res.AssigneeID == nil {
			rels = append(rels, RelUnassigned)
		} else if *res.AssigneeID == caller.UserID {
			rels = append(rels, RelAssignee)
		}
		if len(rels) == 0 {
			rels = append(rels, RelOther)
		}
		return rels
	case ObjUser:
		if res.OwnerID == 0 {
			return []string{RelAny}
		}
		if res.OwnerID == caller.UserID {
			return []string{RelSelf}
		}
		return []string{RelOther}
	default:
		return []string{RelAny}
	}
}

// Allowed reports whether the caller may perform action on res. Enforcement
// errors deny.
func (p *Policy) Allowed(caller Caller, res Resource, action string) bool {
	for _, rel := range Relations(caller, res) {
		ok, err := p.enforcer.Enforce(string(caller.Role), res.Kind, action, rel)
		if err != nil {
			log.Error().Err(err).
				Str("role", string(caller.Role)).
				Str("object", res.Kind).
				Str("action", action).
				Msg("authorization check failed")
			return false
		}
		if ok {
			return true
		}
	}
	return false
}
