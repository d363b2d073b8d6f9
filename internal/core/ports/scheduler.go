package ports

import "time"

// SchedulerService runs the reconciliation batch jobs periodically.
type SchedulerService interface {
	Start()
	Stop()
	ScheduleJob(name string, interval time.Duration, job func()) error
}
