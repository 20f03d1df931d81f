// Package config loads the server configuration from config.yaml.
//
// Sections:
//   - server.host, server.http_port: HTTP listener (default 0.0.0.0:5000)
//   - server.timezone: IANA zone shift windows are evaluated in (default local)
//   - server.ignore_shift_check: skip shift resolution on pulse reports
//   - server.history_days: dashboard history grid depth (default 10)
//   - server.broadcast_interval: status push and shift tick period (default 5s)
//   - server.log_level: debug | info | warn | error (default info)
//   - server.tls: enabled, cert_file, key_file; falls back to HTTP when missing
//   - server.auth: mode (apikey | none), key_env, header (default x-api-key)
//   - database.path: SQLite file (default kalfix.db)
//   - database.retry: max_attempts, initial_interval, max_interval
//   - alerts.rules, alerts.webhooks: threshold rules and delivery targets
//
// Load(path) applies defaults before unmarshalling, then the environment
// overrides KALFIX_DATABASE_PATH and KALFIX_IGNORE_SHIFT_CHECK, then
// validates.
//
// Watch(ctx, path, fn) reloads the file on change. The server applies
// ignore_shift_check, log_level and alert rules from a reload; every other
// setting needs a restart.
package config
