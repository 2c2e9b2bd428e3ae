package service

import (
	"time"

	"faultline/config"
	"faultline/core"
	"faultline/database"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Services is the global service container
type Services struct {
	Errors    *ErrorService
	Retention *RetentionService
}

// GlobalServices is the global service instance
var GlobalServices *Services

// InitServices wires the error logger over db and builds all services. The
// logger also becomes the process default used by core.LogCritical and
// friends.
func InitServices(db *gorm.DB, settings *config.Config) *Services {
	store := database.NewErrorStore(db)
	logger := core.NewErrorLogger(store, core.LoggerOptions{
		RetentionDays: settings.RetentionDays,
		WriteTimeout:  time.Duration(settings.WriteTimeoutSeconds) * time.Second,
		Fallback:      logrus.WithField("component", "error-logger"),
	})
	core.SetDefault(logger)

	GlobalServices = &Services{
		Errors: NewErrorService(logger, store, ErrorServiceOptions{
			AlertThreshold: settings.AlertThreshold,
		}),
		Retention: NewRetentionService(logger, db, RetentionOptions{
			Schedule: settings.RetentionSchedule,
			Timeout:  time.Duration(settings.RequestTimeoutSeconds) * time.Second,
		}),
	}
	return GlobalServices
}
