// Package check implements the named checks run against the backend.
//
// New(config.Check, Target) returns the Check for a definition:
//   - pin: pin.Verify against the expected set. Mismatch is StatusFail,
//     connect/handshake failure is StatusError.
//   - http: one HTTPS request; an empty expect_status accepts any response.
//   - websocket: a WebSocket upgrade via gorilla/websocket.
//
// HTTP and WebSocket checks share the target trust model: no chain
// validation unless verify_chain is set, and the pin set enforced on the
// connection when enforce_pin is set. Request failures are *EndpointError.
package check
