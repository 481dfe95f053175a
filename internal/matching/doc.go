// Package matching implements the request matching primitives used by mock
// routers: URL patterns with named captures, method sets, and JSONPath
// lookups over decoded request bodies.
//
// URL patterns follow the conventions of route definition files:
//
//	/api/users              exact (case-insensitive, trailing slash ignored)
//	/api/users/:id          named segment, captured as "id"
//	/api/users/{id}         same, brace form
//	/api/users/:id?         optional trailing named segment
//	/api/*                  wildcard; a trailing * captures the remaining path as "0"
package matching
