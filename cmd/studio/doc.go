// Package main is the entry point of the studio daemon.
//
// The daemon binds one remote workspace and keeps its session model: the
// file tree, open tabs, file contents, the editor document and the build.
// A browser front end drives it over a local control API.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Bind an existing workspace
//	./studio --backend http://localhost:5051 --workspace 1a2b3c4d
//
//	# Create a fresh workspace, debug logging
//	./studio --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
