package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

var (
	InfoLogger  *logrus.Logger
	ErrorLogger *logrus.Logger
)

func InitLogger() {
	InfoLogger = logrus.New()
	ErrorLogger = logrus.New()

	// Info ke stdout, error ke stderr
	InfoLogger.SetOutput(os.Stdout)
	InfoLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	InfoLogger.SetLevel(logrus.InfoLevel)

	ErrorLogger.SetOutput(os.Stderr)
	ErrorLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	// Printf milik logrus menulis di level info; level logger ini harus
	// info juga supaya pesan error tidak tertelan.
	ErrorLogger.SetLevel(logrus.InfoLevel)

	// LOG_LEVEL=debug untuk menampilkan log reconciliation per event
	if os.Getenv("LOG_LEVEL") == "debug" {
		InfoLogger.SetLevel(logrus.DebugLevel)
	}
}
