package policy

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/supplywise/auth-gateway/utils"
)

const doubleWildcard = "**"

// Engine evaluates requests against an ordered, immutable rule table
type Engine struct {
	rules []compiledRule
}

type compiledRule struct {
	rule          Rule
	segments      []string
	trailingAny   bool
	literalPrefix int
	exact         bool
	methods       map[string]struct{}
	roles         []string
	index         int
}

// NewEngine validates and compiles rules into evaluation order
func NewEngine(rules []Rule) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		c, err := compileRule(i, r)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return moreSpecific(compiled[i], compiled[j])
	})

	return &Engine{rules: compiled}, nil
}

// Rules returns the rules in evaluation order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, c := range e.rules {
		out = append(out, c.rule)
	}
	return out
}

// Authorize decides whether a request may proceed. A nil principal is anonymous.
func (e *Engine) Authorize(requestPath, method string, principal Principal) Decision {
	segments := splitPath(NormalizePath(requestPath))
	method = strings.ToUpper(method)

	for _, c := range e.rules {
		if !c.matches(segments, method) {
			continue
		}
		return c.decide(principal)
	}

	if principal == nil {
		return Decision{Allowed: false, Reason: ReasonUnauthenticated}
	}
	return Decision{Allowed: true, Reason: ReasonAuthenticated}
}

// NormalizePath cleans a request path for matching
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// encodedSeparators decode into characters that change how a path splits into segments
var encodedSeparators = []string{"%2f", "%2e", "%5c", "%00"}

// IsCanonicalPath reports whether an escaped request path is already in the
// form rules are matched against: no dot segments, no repeated slashes and no
// percent-encoded separators. A single trailing slash is allowed.
// Routers that dispatch on the raw path see the same segments as the engine
// only for canonical paths.
func IsCanonicalPath(escaped string) bool {
	lower := strings.ToLower(escaped)
	for _, enc := range encodedSeparators {
		if strings.Contains(lower, enc) {
			return false
		}
	}

	p := escaped
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p == NormalizePath(p)
}

func compileRule(index int, r Rule) (compiledRule, error) {
	r = normalizeRule(r)
	if err := utils.ValidateStruct(&r); err != nil {
		return compiledRule{}, fmt.Errorf("rule %d (%s): %w", index, r.Pattern, err)
	}
	if r.Access == AccessRoles && len(r.Roles) == 0 {
		return compiledRule{}, fmt.Errorf("rule %d (%s): roles access needs at least one role", index, r.Pattern)
	}

	segments := splitPath(r.Pattern)
	c := compiledRule{
		rule:  r,
		index: index,
		roles: r.Roles,
	}

	for i, s := range segments {
		if s == doubleWildcard {
			if i != len(segments)-1 {
				return compiledRule{}, fmt.Errorf("rule %d (%s): %q is only allowed as the last segment", index, r.Pattern, doubleWildcard)
			}
			c.trailingAny = true
			segments = segments[:i]
			break
		}
	}
	c.segments = segments

	c.exact = !c.trailingAny
	for i, s := range segments {
		if isWildcard(s) {
			c.exact = false
			break
		}
		c.literalPrefix = i + 1
	}

	if len(r.Methods) > 0 {
		c.methods = make(map[string]struct{}, len(r.Methods))
		for _, m := range r.Methods {
			c.methods[m] = struct{}{}
		}
	}

	return c, nil
}

func normalizeRule(r Rule) Rule {
	r.Pattern = strings.TrimSpace(r.Pattern)
	if r.Access == "" && len(r.Roles) > 0 {
		r.Access = AccessRoles
	}
	r.Access = Access(strings.ToLower(string(r.Access)))

	methods := make([]string, 0, len(r.Methods))
	for _, m := range r.Methods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
	}
	r.Methods = methods
	if len(r.Methods) == 0 {
		r.Methods = nil
	}

	if len(r.Roles) > 0 {
		r.Roles = NormalizeRoles(r.Roles)
	}
	return r
}

// moreSpecific orders rules: longer literal prefix, exact before wildcard,
// more segments, method-specific before method-agnostic, then declaration order.
func moreSpecific(a, b compiledRule) bool {
	if a.literalPrefix != b.literalPrefix {
		return a.literalPrefix > b.literalPrefix
	}
	if a.exact != b.exact {
		return a.exact
	}
	if len(a.segments) != len(b.segments) {
		return len(a.segments) > len(b.segments)
	}
	if (a.methods != nil) != (b.methods != nil) {
		return a.methods != nil
	}
	return a.index < b.index
}

func (c compiledRule) matches(segments []string, method string) bool {
	if c.methods != nil {
		if _, ok := c.methods[method]; !ok {
			return false
		}
	}

	if c.trailingAny {
		if len(segments) < len(c.segments) {
			return false
		}
	} else if len(segments) != len(c.segments) {
		return false
	}

	for i, want := range c.segments {
		if isWildcard(want) {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if want != segments[i] {
			return false
		}
	}
	return true
}

func (c compiledRule) decide(principal Principal) Decision {
	d := Decision{Rule: c.rule.String()}

	switch c.rule.Access {
	case AccessPublic:
		d.Allowed = true
		d.Reason = ReasonPublic
	case AccessAuthenticated:
		if principal == nil {
			d.Reason = ReasonUnauthenticated
			return d
		}
		d.Allowed = true
		d.Reason = ReasonAuthenticated
	default:
		if principal == nil {
			d.Reason = ReasonUnauthenticated
			return d
		}
		if !principal.HasAnyRole(c.roles...) {
			d.Reason = ReasonInsufficientRole
			return d
		}
		d.Allowed = true
		d.Reason = ReasonRoleGranted
	}
	return d
}

func isWildcard(segment string) bool {
	if segment == "*" {
		return true
	}
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

// splitPath splits a path into segments, dropping leading and trailing slashes
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
