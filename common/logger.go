package common

import (
	"github.com/sirupsen/logrus"
)

// ContextLogger wraps a logrus.Logger with a set of fields that travel
// with every call, growing (via WithField/WithFields/WithError) as a
// request or task hands the logger down through its call chain.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger creates a context-aware logger seeded with fields. A
// nil logger falls back to the package-wide Logger.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	baseFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		baseFields[k] = v
	}
	return &ContextLogger{logger: logger, fields: baseFields}
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+1)
	for k, v := range cl.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Info(msg string) { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Warn(msg string) { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}
func (cl *ContextLogger) Fatal(msg string) { cl.logger.WithFields(cl.fields).Fatal(msg) }
func (cl *ContextLogger) Fatalf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Fatalf(format, args...)
}

// ServiceLogger returns a ContextLogger tagged with the running
// service's name and version, the base every process-wide log line
// carries.
func ServiceLogger(serviceName, serviceVersion string) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
	})
}
