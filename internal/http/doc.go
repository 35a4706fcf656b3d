// Package http exposes the matchbook API over net/http.
//
// The router serves the following endpoints:
//   - GET /personas[?category=], GET /personas/{alias}: the persona catalog.
//   - GET /subjects/{id}/personas, POST /subjects/{id}/personas,
//     DELETE /subjects/{id}/personas/{alias}: a subject's persona assignments.
//     POST bodies are {"alias","weight"} where weight is 1 (secondary) or 2
//     (primary).
//   - POST /scores/team {"subject_ids"}, POST /scores/match
//     {"subject_a","subject_b"}, POST /scores/rank
//     {"subject_id","candidates","limit"}: compatibility scores on a 0-100
//     scale together with their component terms.
//   - GET /reservations[?subject=&status=&venue=&limit=], POST /reservations,
//     GET /reservations/{id}: reservations exchanging the reservationDTO
//     payload defined in reservation_handler.go.
//   - POST /reservations/{id}/confirm, /cancel ({"reason"} optional) and
//     /complete: lifecycle transitions. A transition the current status does
//     not allow answers 409 with error_code INVALID_STATE_TRANSITION.
//   - GET /venues, GET /healthz, GET /metrics.
//
// Errors are rendered as errorResponse with localized messages.
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
