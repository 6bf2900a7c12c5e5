// Package klog provides the structured logger shared by every Karabo
// component (fabric, device runtime, lock, alarm service, loggers).
package klog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance. Components should prefer the
// With* helpers below over using Logger directly, so that log lines
// carry consistent field names.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// SetLevel sets the logging level by name (e.g. "debug", "info", "warn").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to JSON-lines output, used by device servers
// running under a log aggregator.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// WithField returns an entry carrying one field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns an entry carrying several fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithInstance tags a log line with the emitting SignalSlotable instance.
func WithInstance(instanceID string) *logrus.Entry {
	return Logger.WithField("instanceId", instanceID)
}

// WithDevice tags a log line with the owning deviceId.
func WithDevice(deviceID string) *logrus.Entry {
	return Logger.WithField("deviceId", deviceID)
}

// WithSlot tags a log line with the slot being invoked.
func WithSlot(slot string) *logrus.Entry {
	return Logger.WithField("slot", slot)
}

// WithSignal tags a log line with the signal being emitted.
func WithSignal(signal string) *logrus.Entry {
	return Logger.WithField("signal", signal)
}
