// Package pin computes and compares TLS certificate pins.
//
// A pin is the SHA-256 digest of either the leaf certificate's DER bytes
// (KindCertificate) or its SubjectPublicKeyInfo (KindSPKI), encoded as
// standard padded base-64. Pins may be written with an optional "sha256/"
// prefix in configuration; Normalize strips it.
//
// Fetch dials a target, completes a TLS handshake and hashes the leaf
// certificate. By default the chain is not verified: trust comes from the
// pin alone. Verify compares the result against a Set of acceptable pins
// (primary plus backups) and reports *MismatchError or *ConnectivityError.
//
// VerifyConnection returns a tls.Config hook so HTTP and WebSocket clients
// can enforce the same pin set on every connection they open.
package pin
