// Package middleware implements the request-time authorization
// pipeline: authenticate the caller, resolve the target tenant, load
// the caller's membership, then evaluate the route's requirement.
//
// Each stage fails closed. A request that cannot be attributed to an
// identity is rejected with 401; one whose tenant cannot be determined
// (when the route needs one) with 400; one without an active
// membership with 403. Unexpected failures surface as 500 with a
// correlation id and never as an allow.
package middleware
