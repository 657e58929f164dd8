package streams

import "github.com/sirupsen/logrus"

// log is the package-level logger for the core engine. Individual
// processors attach their own fields via log.WithFields before emitting.
var log = logrus.StandardLogger()

// SetLogger overrides the package-level logger, letting an embedding
// application route core engine logs into its own logrus hooks/formatter.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
