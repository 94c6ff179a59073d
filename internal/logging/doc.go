// Package logging builds the zap loggers shared by the kernel and its
// introspection API.
//
// Production mode emits JSON records; development mode emits colored
// console lines with stacktraces enabled.
//
//	logger := logging.NewDefault()
//	logger.Info("server starting", zap.String("port", "8000"))
package logging
