// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components of the session core take a *zap.Logger and treat nil as a
// no-op logger, so library code never has to construct one. Binaries build
// the root logger here and hand Named children to each component:
//
//	logger := logging.NewDefault()
//	cache := content.New(client, content.WithLogger(logger.Named("content")))
//	logger.Info("Workspace bound", zap.String("workspace_id", wid))
package logging
