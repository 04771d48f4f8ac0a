package ipc

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger is used whenever a caller doesn't supply one, so every
// Pipe/Endpoint always has a non-nil *logrus.Entry to log through
// without every call site needing a nil check.
var discardLogger = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}()
