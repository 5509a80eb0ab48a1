package persist

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "persist")
