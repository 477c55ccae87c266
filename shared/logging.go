package shared

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging applies level, format and optional rotating file output to
// the standard logrus logger.
func ConfigureLogging(cfg LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	logrus.SetOutput(output)

	logrus.WithFields(logrus.Fields{
		"level":   level.String(),
		"format":  cfg.Format,
		"file":    cfg.File,
		"service": cfg.ServiceName,
	}).Debug("Logging configured")
}
