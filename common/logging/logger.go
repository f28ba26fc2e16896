package logging

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000 Z07:00"

const auditField = "audit"

type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Time = entry.Time.UTC()
	return f.Formatter.Format(entry)
}

func newFormatter(colors bool, json bool) logrus.Formatter {
	if json {
		return &utcFormatter{&logrus.JSONFormatter{TimestampFormat: timestampFormat}}
	}
	return &utcFormatter{&logrus.TextFormatter{
		TimestampFormat:  timestampFormat,
		FullTimestamp:    true,
		ForceColors:      colors,
		DisableColors:    !colors,
		QuoteEmptyFields: true,
	}}
}

func newRotatingWriter(dir string, name string, maxAge time.Duration) (io.Writer, error) {
	logFile := path.Join(dir, name)
	return rotatelogs.New(
		logFile+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}

// Setup configures the global logger. With a log directory, everything is
// also written to media_repo.log and access records additionally to audit.log.
func Setup(dir string, colors bool, json bool, level string) error {
	if err := SetLevel(level); err != nil {
		return err
	}

	formatter := newFormatter(colors, json)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	if dir == "" || dir == "-" {
		return nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	writer, err := newRotatingWriter(dir, "media_repo.log", 14*24*time.Hour)
	if err != nil {
		return err
	}
	logrus.AddHook(lfshook.NewHook(writer, formatter))

	// Audit files are always JSON so they can be shipped as-is
	auditWriter, err := newRotatingWriter(dir, "audit.log", 90*24*time.Hour)
	if err != nil {
		return err
	}
	logrus.AddHook(&auditHook{
		writer:    auditWriter,
		formatter: &utcFormatter{&logrus.JSONFormatter{TimestampFormat: timestampFormat}},
	})

	return nil
}

func SetLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// Audit returns the logger for access records. Entries written here must only
// carry opaque identifiers, never filenames or content.
func Audit() *logrus.Entry {
	return logrus.WithField(auditField, true)
}

type auditHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *auditHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *auditHook) Fire(entry *logrus.Entry) error {
	if v, ok := entry.Data[auditField].(bool); !ok || !v {
		return nil
	}
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// SendToDebugLogger adapts logrus for libraries that want a Printf-style logger.
type SendToDebugLogger struct{}

func (*SendToDebugLogger) Print(v ...interface{}) {
	logrus.Debug(v...)
}

func (*SendToDebugLogger) Printf(format string, v ...interface{}) {
	logrus.Debugf(format, v...)
}

func (*SendToDebugLogger) Println(v ...interface{}) {
	logrus.Debugln(v...)
}

func (*SendToDebugLogger) Fatalf(format string, v ...interface{}) {
	logrus.Fatalf(format, v...)
}
