// Package http exposes session listing and slot reservations over JSON.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness of the process and its store. Not authenticated.
//   - GET /sessions: active sessions ordered by date, each with its team layout.
//   - GET /sessions/{sessionID}: reconciles the caller's slots in the session
//     and returns the resulting `viewDTO`.
//   - POST /sessions/{sessionID}/reservation: body {"team","slot_index"}.
//     Reconciles, then reserves. Responds 201 with the reservation and view.
//   - DELETE /sessions/{sessionID}/reservation: reconciles, then releases the
//     caller's slot. Responds 200 with the view.
//   - GET /sessions/{sessionID}/events: WebSocket stream of slot events.
//
// Every endpoint except /healthz requires `Authorization: Bearer <token>`. The
// events endpoint also accepts the token as the `token` query parameter since
// browsers cannot set headers on WebSocket handshakes.
//
// Request/response DTOs live in reservation_handler.go so tests and
// documentation share the same ground truth.
package http
