// Package mocks resolves mock definitions into routers and keeps the one
// currently answering requests.
//
// A mock selects one variant per route, optionally inheriting the variants
// of a base mock via "from". The most specific choice for a route wins at any
// depth. The Registry rebuilds every mock on Load, selects the active one,
// applies per-route overrides on top of it, and publishes the resulting
// router atomically so requests never observe a half-built table.
package mocks
