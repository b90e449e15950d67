package main

import (
	"os"
	"strings"

	"github.com/kpango/glg"
)

var logFile *os.File

// ConfigureLogging silences every level below level and adds a log file when path is set.
func ConfigureLogging(level, path string) {
	logger := glg.Get()

	switch strings.ToUpper(level) {
	case "ERROR":
		logger.SetLevelMode(glg.WARN, glg.NONE)
		fallthrough
	case "WARN":
		logger.SetLevelMode(glg.INFO, glg.NONE)
		logger.SetLevelMode(glg.OK, glg.NONE)
		logger.SetLevelMode(glg.PRINT, glg.NONE)
		fallthrough
	case "INFO":
		logger.SetLevelMode(glg.DEBG, glg.NONE)
	case "DEBUG":
	default:
		glg.Warnf("Unknown log level %q, logging everything", level)
	}

	if path == "" {
		return
	}

	logFile = glg.FileWriter(path, 0644)
	if logFile == nil {
		glg.Errorf("Failed to open log file %s", path)
		return
	}
	logger.SetMode(glg.BOTH).AddWriter(logFile)
}

// CloseLogger closes the log file, if one was configured.
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
