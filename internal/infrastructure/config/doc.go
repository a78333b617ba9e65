// Package config provides 12-factor configuration for the workspace session
// daemon and the development backend.
//
// Configuration is loaded from environment variables with defaults. The
// binaries under cmd/ let command-line flags override the loaded values.
//
// Configuration Sections:
//   - Backend: Remote workspace backend (URL, prefixes, workspace, resilience)
//   - Server: Control API listener and CORS origins
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting on the control API
//   - Tree: Globs hidden from the file explorer
//   - Editor: Language table overrides and tab-close policy
//   - DevBackend: Local directory backend used for development
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Backend %s, workspace %q\n", cfg.Backend.URL, cfg.Backend.WorkspaceID)
//
// Environment Variables:
//   - BACKEND_URL, BACKEND_API_PREFIX, BACKEND_PREVIEW_PREFIX, WORKSPACE_ID
//   - BACKEND_TIMEOUT, BACKEND_RETRY_MAX, BACKEND_RETRY_WAIT_MIN, BACKEND_RETRY_WAIT_MAX
//   - BACKEND_RATE_LIMIT_RPS, BACKEND_AUTH_TOKEN
//   - PORT, HOST, CORS_ORIGINS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - TREE_IGNORE, EDITOR_LANGUAGES_FILE, EDITOR_TAB_CLOSE
//   - DEV_ROOT, DEV_BUILD_CMD, DEV_PORT, DEV_TEMPLATE
package config
