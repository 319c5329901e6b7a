// Package log wires logrus to an optional rotated log file using
// gopkg.in/natefinch/lumberjack.v2, the same way containerd's stdout/stderr
// rotation is wired.
package log

import (
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logger's level and output. An empty
// logFile logs to stderr; otherwise output is rotated at 100MB/10 backups.
func Setup(level, logFile string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	if logFile == "" {
		return nil
	}
	logrus.SetOutput(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     28,
		Compress:   true,
	})
	return nil
}
