// Package config loads and watches the monitor configuration file.
//
// Top-level types:
//   - Config{Monitor, Probe, Notifier, History, Archive, Server}
//   - MonitorConfig: data_dir, logs_dir, check_interval, rotation_interval,
//     log_level
//   - ProbeConfig: user_agent, insecure_skip_verify, max_body_bytes
//   - NotifierConfig: sms gateway credentials and rate, webhook targets
//   - HistoryConfig: sqlite path and retention
//   - ArchiveConfig: S3-compatible endpoint and bucket for rotated logs
//   - ServerConfig: http/grpc ports, api key auth, status TTL, stream interval
//
// Secrets are never stored in the file. Fields ending in _env name the
// environment variable that holds the value, and accessor methods (Key,
// AuthToken, AccessKey, SecretKey, URL) resolve them at call time.
//
// Load(path) reads the YAML file, applies defaults (60s check cycle, 24h
// rotation, ports 8080/50051), then validates. Watch(ctx, path, onChange)
// re-runs Load on every write and hands the result to onChange.
package config
