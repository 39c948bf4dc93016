// Package config loads and watches the pincheck configuration file.
//
// Top-level types:
//   - Config{Target, Pins, Checks, Output, Notify, Log}, parsed from YAML
//   - TargetConfig: host, port, server_name, timeout and the tls trust
//     model (verify_chain, ca_file, enforce_pin)
//   - PinsConfig: kind (cert|spki), expected pins, and env, the name of an
//     environment variable whose comma-separated value overrides expected
//   - Check: name, type (pin|http|websocket), method, path, body, headers,
//     expect_status, optional, requires, auth
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); secrets are read
//     from the environment through *_env fields
//
// Load(path) reads the YAML file, applies defaults (localhost:443, 5s
// timeout, cert pins from PINCHECK_PINS), fills in DefaultChecks when the
// file lists none, then validates. Default() returns the built-in
// configuration for the development backend.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file when it
// changes so a rotated pin takes effect without a restart.
package config
