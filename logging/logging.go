// Package logging builds the structured logger every other package
// accepts as a *logrus.Logger. It writes to logs/app_log_<date>.log, with
// the date taken once when New is called, and delegates size-based
// rotation of that file to lumberjack; it does not switch to a new file
// when the date changes.
package logging

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Level defaults to info when empty; Dir defaults
// to "logs".
type Options struct {
	Level string
	Dir   string
}

// New builds a logrus.Logger writing structured JSON to a daily-named,
// size-rotated file under Dir.
func New(opts Options) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	dir := opts.Dir
	if dir == "" {
		dir = "logs"
	}

	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s/app_log_%s.log", dir, date)

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   true,
	})

	return log, nil
}
