// Package httpapi serves the pathways REST API under /api/lx-pathways/v1/.
//
// Two routers are provided. The Studio router exposes the full authoring
// API (create, edit, publish, revert, delete). The LMS router is read-only
// and resolves blocks against published data.
//
// Every request must carry an HMAC-signed bearer token; see Authenticator.
// Errors are returned as {"detail": "..."}.
package httpapi
