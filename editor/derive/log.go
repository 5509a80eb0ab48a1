package derive

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "derive")
