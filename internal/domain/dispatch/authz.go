package dispatch

import "fmt"

// Action is a resource operation: "Read/Write actions".
type Action int8

const (
	ActionRead Action = iota
	ActionWrite
)

// Resource names what a request acts on derivation:
// "namespace:group:resource_type/resource_name".
type Resource struct {
	Namespace string
	Group string
	ResourceType string
	ResourceName string
	Action Action
}

func (r Resource) String() string {
	return fmt.Sprintf("%s:%s:%s/%s", r.Namespace, r.Group, r.ResourceType, r.ResourceName)
}

// Principal is the authenticated identity attached to a Request after a
// connection completes its handshake (populated from the access token
// metadata the teacher's AuthContact played the same role for).
type Principal struct {
	Subject string
	Roles []string
	Policies []Policy
}

// Policy is one allow-rule: a namespace/group/resource_type pattern (""
// or "*" matches anything; otherwise a single leading or trailing "*"
// wildcard, matched by globMatch) plus the actions it permits.
type Policy struct {
	NamespacePattern string
	GroupPattern string
	TypePattern string
	Actions []Action
}

// Authorizer decides whether a Principal may perform a Resource action.
type Authorizer interface {
	Allow(p *Principal, r Resource) bool
}

// PolicyAuthorizer evaluates a Principal's attached policies against the
// requested Resource, generalizing the teacher's context-injected
// AuthContact check (infra/server/grpc/interceptors/stream_auth.go) from
// "is there an identity at all" into "does the identity's policy set
// permit this specific namespace/group/resource".
type PolicyAuthorizer struct{}

func NewPolicyAuthorizer() *PolicyAuthorizer { return &PolicyAuthorizer{} }

func (PolicyAuthorizer) Allow(p *Principal, r Resource) bool {
	if p == nil {
		return false
	}
	for _, pol := range p.Policies {
		if !globMatch(pol.NamespacePattern, r.Namespace) {
			continue
		}
		if !globMatch(pol.GroupPattern, r.Group) {
			continue
		}
		if !globMatch(pol.TypePattern, r.ResourceType) {
			continue
		}
		for _, a := range pol.Actions {
			if a == r.Action {
				return true
			}
		}
	}
	return false
}

// globMatch supports a single trailing/leading "*" wildcard, which
// covers every pattern shape names without pulling in a
// regexp engine for the common case.
func globMatch(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if pattern == value {
		return true
	}
	n := len(pattern)
	if n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(value) >= len(prefix) && value[:len(prefix)] == prefix
	}
	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(value) >= len(suffix) && value[len(value)-len(suffix):] == suffix
	}
	return false
}
