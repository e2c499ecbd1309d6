package util

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits.
const (
	LogFileMaxSizeMB  = 20
	LogFileMaxBackups = 5
	LogFileMaxAgeDays = 14
)

// OpenLogFile returns a size-rotated writer for path.  The file is
// created lazily on the first write; Close releases it.
func OpenLogFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    LogFileMaxSizeMB,
		MaxBackups: LogFileMaxBackups,
		MaxAge:     LogFileMaxAgeDays,
		Compress:   true,
	}
}
