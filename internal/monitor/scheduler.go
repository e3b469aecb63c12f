package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler interface {
	Every(period time.Duration, job func()) error
	Start()
	// Stop halts future runs; the returned context is done once running jobs finish.
	Stop() context.Context
}

type CronScheduler struct {
	cron *cron.Cron
}

func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
	}
}

func (s *CronScheduler) Every(period time.Duration, job func()) error {
	s.cron.Schedule(cron.Every(period), cron.FuncJob(job))
	return nil
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

func (s *CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}
