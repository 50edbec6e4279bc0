// Package policy provides the route authorization engine for the Supplywise API.
//
// Rules map a path pattern (and optionally a set of HTTP methods) to an
// access level:
//   - public: no principal required
//   - authenticated: any verified principal
//   - roles: a principal holding at least one of the listed roles
//
// Rules are evaluated most specific first and the first match decides.
// A path that matches no rule requires authentication.
package policy
