package obs

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// SetLevel parses a level name ("debug", "info", ...) and applies it to the
// shared logger. Unknown names leave the level unchanged.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		Logger().WithField("level", name).Warn("unknown log level")
		return
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured line with common HTTP fields.
func LogRequest(fields logrus.Fields) {
	Logger().WithFields(fields).Info("request_complete")
}
