// Package klog gives every kernel subsystem its own structured logger, one
// logrus entry tagged with the subsystem name, so a fatal diagnostic always
// carries the failing component as a field.
package klog

import "github.com/sirupsen/logrus"

var base = logrus.New()

// For returns a logger tagged with the given subsystem name.
func For(subsystem string) *logrus.Entry {
	return base.WithField("subsys", subsystem)
}

// SetLevel adjusts the verbosity of every subsystem logger.
func SetLevel(lvl logrus.Level) {
	base.SetLevel(lvl)
}
