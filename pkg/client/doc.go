// Package client mirrors server-side authorization state for
// in-process permission checks.
//
// The Client fetches resolved access over HTTP from an authcore
// server; the Mirror holds the most recently verified access and
// answers permission checks against it without further round trips.
// Mirror checks are a UX convenience. The server re-evaluates every
// request, so a stale mirror can at worst hide a button, never grant
// access.
package client
