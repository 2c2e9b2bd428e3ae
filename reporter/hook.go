package reporter

import (
	"faultline/models"

	"github.com/sirupsen/logrus"
)

// logHook forwards error-level log entries to the reporter.
type logHook struct {
	r *Reporter
}

func (h logHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h logHook) Fire(entry *logrus.Entry) error {
	if entry.Data["component"] == componentName {
		return nil
	}

	level := models.LevelError
	if entry.Level <= logrus.FatalLevel {
		level = models.LevelCritical
	}

	err, _ := entry.Data[logrus.ErrorKey].(error)
	additional := map[string]any{"source": "log"}
	for k, v := range entry.Data {
		if k == logrus.ErrorKey {
			continue
		}
		additional[k] = v
	}

	message := entry.Message
	if err != nil {
		message += ": " + err.Error()
	}
	h.r.Report(level, message, err, additional)
	return nil
}

// Install reports every error-level entry written through logger.
func (r *Reporter) Install(logger *logrus.Logger) {
	logger.AddHook(logHook{r: r})
}
