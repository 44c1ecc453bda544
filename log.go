package vpk

import "go.uber.org/zap"

// nopLogger is the default logger for an Archive that hasn't been given one
// via WithLogger, mirroring how iamNilotpal's engine and storage types carry
// a *zap.SugaredLogger field rather than reaching for the global logger.
var nopLogger = zap.NewNop().Sugar()
