package audit

import "sync"

var (
	logger     *Logger
	loggerErr  error
	loggerOnce sync.Once
)

// initLogger resolves the package-singleton Logger, the same
// sync.Once-guarded lazy-init shape tieredkv/init.go and cache-manager's
// initService use.
func initLogger() (*Logger, error) {
	loggerOnce.Do(func() {
		logger, loggerErr = NewLogger(db)
	})
	return logger, loggerErr
}
