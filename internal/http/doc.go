// Package http provides HTTP handlers and middleware for the hall allocation API.
//
// The router exposes the following endpoints. Everything except POST /sessions
// requires a session token, sent as "Authorization: Bearer <token>" or in the
// session_token cookie.
//   - POST /sessions: issues a session token. Body: {"email","password"}.
//     Response: {"token","expires_at"}; the token is also returned in the
//     X-Session-Token header and a session_token cookie.
//   - DELETE /sessions/current: revokes the caller's token.
//   - GET /me: the authenticated account.
//   - POST /students, GET /students, GET /students/{id}: resident registration
//     and lookup. GET /students?roll_number= finds a student by roll number.
//   - GET /rooms, POST /rooms, DELETE /rooms/{block}/{number}: room inventory.
//   - GET /rooms/{block}/{number}/layout and /beds: occupancy views.
//   - PUT /rooms/{block}/{number}/capacity: resize a room.
//   - /allocations/...: the allocation workflow. See allocation_handler.go for
//     the request and response DTOs.
//
// Errors are returned as {"error_code","message","errors"}. Validation
// problems map to 422, missing resources to 404, conflicts to 409, failed
// preconditions to 412 and permission problems to 403.
package http
