package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronLogger routes cron's own logging through logrus
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(pairs(keysAndValues)).WithError(err).Error(msg)
}

func pairs(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

// Scheduler owns the cron runner for background jobs. Specs use the
// standard five-field format and may carry a CRON_TZ= prefix.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	logger := cronLogger{entry: logrus.WithField("component", "Scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Schedule registers fn under spec
func (s *Scheduler) Schedule(name, spec string, fn func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "Scheduler",
			"job":       name,
			"spec":      spec,
		}).WithError(err).Error("Invalid job schedule")
		return err
	}
	s.cron.Schedule(schedule, cron.FuncJob(fn))
	logrus.WithFields(logrus.Fields{
		"component": "Scheduler",
		"job":       name,
		"spec":      spec,
		"next_run":  schedule.Next(time.Now()),
	}).Info("Scheduled job")
	return nil
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
