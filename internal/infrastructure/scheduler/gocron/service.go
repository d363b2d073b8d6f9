package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"

	"github.com/soldihq/soldi/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	svc.SingletonModeAll()
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleJob(name string, interval time.Duration, job func()) error {
	_, err := s.scheduler.Every(interval).Tag(name).Do(func() {
		log.Debugf("running job %s", name)
		job()
	})
	return err
}
