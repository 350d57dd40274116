// Package authz evaluates named authorization policies against an authenticated Principal.
package authz

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/user"
)

// Policy names
const (
	PolicyAuthenticated    = "Authenticated"
	PolicyCourseAuthor     = "CourseAuthor"
	PolicyCourseSubscriber = "CourseSubscriber"
	PolicyCourseLimit      = "CourseLimit"
	RolePolicyPrefix       = "Role:"

	DefaultCourseLimit = 5
)

var (
	ErrUnknownPolicy = errors.New("unknown authorization policy")
	ErrForbidden     = errors.New("permission denied")
)

// Principal is the authenticated user, as read from their token claims.
type Principal struct {
	ID       string
	FullName string
	Email    string
	Roles    []string
}

func (p Principal) IsAuthenticated() bool { return p.ID != "" }
func (p Principal) HasRole(role string) bool {
	return core.ContainsString(p.Roles, role)
}

func RolePolicy(role string) string { return RolePolicyPrefix + role }

type (
	Requirement interface {
		requirement()
	}

	RolesRequirement struct {
		Roles []string // any of
	}

	// CourseAuthorRequirement: the principal authored the course.
	CourseAuthorRequirement struct{}

	// CourseSubscriberRequirement: the principal subscribed to the course, or authored it.
	CourseSubscriberRequirement struct{}

	// CourseLimitRequirement: the principal authored fewer than Limit courses.
	CourseLimitRequirement struct {
		Limit int
	}
)

func (RolesRequirement) requirement()            {}
func (CourseAuthorRequirement) requirement()     {}
func (CourseSubscriberRequirement) requirement() {}
func (CourseLimitRequirement) requirement()      {}

// CourseInfo gives the handlers access to course ownership and subscriptions.
type CourseInfo interface {
	GetCourseAuthorID(ctx context.Context, id int64) (string, error)
	GetCourseCountByAuthorID(ctx context.Context, authorID string) (int, error)
	IsCourseSubscribed(ctx context.Context, courseID int64, userID string) (bool, error)
}

// Handler evaluates a Requirement. It reports false for requirements it does not handle.
type Handler interface {
	Handle(ctx context.Context, p Principal, req Requirement, resource interface{}) (bool, error)
}

type HandlerFunc func(ctx context.Context, p Principal, req Requirement, resource interface{}) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, p Principal, req Requirement, resource interface{}) (bool, error) {
	return f(ctx, p, req, resource)
}

// Authorizer holds named policies. A policy succeeds when every one of its requirements is met by some handler.
type Authorizer struct {
	policies map[string][]Requirement
	handlers []Handler
}

// NewAuthorizer registers the built-in policies and handlers.
func NewAuthorizer(courses CourseInfo) *Authorizer {
	az := &Authorizer{policies: make(map[string][]Requirement)}
	az.AddPolicy(PolicyAuthenticated)
	az.AddPolicy(PolicyCourseAuthor, CourseAuthorRequirement{})
	az.AddPolicy(PolicyCourseSubscriber, CourseSubscriberRequirement{})
	az.AddPolicy(PolicyCourseLimit, CourseLimitRequirement{Limit: DefaultCourseLimit})
	for _, role := range user.AllRoles {
		az.AddPolicy(RolePolicy(role), RolesRequirement{Roles: []string{role}})
	}

	az.AddHandler(HandlerFunc(handleRoles))
	az.AddHandler(&courseHandler{courses: courses})
	return az
}

func (az *Authorizer) AddPolicy(name string, reqs ...Requirement) {
	az.policies[name] = reqs
}

func (az *Authorizer) AddHandler(h Handler) {
	az.handlers = append(az.handlers, h)
}

// Authorize returns nil when p satisfies policyName on resource.
// A comma separated list of policies succeeds when any of them does.
func (az *Authorizer) Authorize(ctx context.Context, p Principal, policyName string, resource interface{}) error {
	if !p.IsAuthenticated() {
		return ErrForbidden
	}

	names := strings.Split(policyName, ",")
	for _, name := range names {
		if _, ok := az.policies[strings.TrimSpace(name)]; !ok {
			return errors.Wrapf(ErrUnknownPolicy, "%q", name)
		}
	}
	for _, name := range names {
		ok, err := az.evaluate(ctx, p, az.policies[strings.TrimSpace(name)], resource)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrForbidden
}

func (az *Authorizer) evaluate(ctx context.Context, p Principal, reqs []Requirement, resource interface{}) (bool, error) {
	for _, req := range reqs {
		met := false
		for _, h := range az.handlers {
			ok, err := h.Handle(ctx, p, req, resource)
			if err != nil {
				return false, err
			}
			if ok {
				met = true
				break
			}
		}
		if !met {
			return false, nil
		}
	}
	return true, nil
}

func handleRoles(_ context.Context, p Principal, req Requirement, _ interface{}) (bool, error) {
	rr, ok := req.(RolesRequirement)
	if !ok {
		return false, nil
	}
	for _, role := range rr.Roles {
		if p.HasRole(role) {
			return true, nil
		}
	}
	return false, nil
}
