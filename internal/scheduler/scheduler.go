// Package scheduler wires the periodic triggers onto cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/alerts"
	"github.com/avezhov/finance-service/internal/config"
	"github.com/avezhov/finance-service/internal/recurring"
	"github.com/avezhov/finance-service/internal/reports"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the three periodic jobs: the daily select-and-dispatch
// of due recurring transactions, the budget alert sweep, and the monthly
// report cycle. The triggers are independent of each other.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	log        *logrus.Logger
	selector   *recurring.Selector
	dispatcher *recurring.Dispatcher
	monitor    *alerts.Monitor
	reports    *reports.Generator
}

// New initializes a new scheduler
func New(cfg *config.Config, log *logrus.Logger, selector *recurring.Selector, dispatcher *recurring.Dispatcher, monitor *alerts.Monitor, generator *reports.Generator) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg,
		log:        log,
		selector:   selector,
		dispatcher: dispatcher,
		monitor:    monitor,
		reports:    generator,
	}
}

// Start registers the cron entries and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.RecurringCron, func() { s.runRecurring(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule recurring trigger: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.BudgetAlertCron, func() { s.runBudgetAlerts(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule budget alert trigger: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.MonthlyReportCron, func() { s.runMonthlyReports(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule monthly report trigger: %w", err)
	}

	s.cron.Start()
	s.log.Infof("Scheduler started: recurring %q, budget alerts %q, monthly reports %q",
		s.cfg.RecurringCron, s.cfg.BudgetAlertCron, s.cfg.MonthlyReportCron)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// runRecurring selects due recurring transactions and fans them out to
// the dispatcher.
func (s *Scheduler) runRecurring(ctx context.Context) {
	due, err := s.selector.DueTransactions(ctx, time.Now())
	if err != nil {
		s.log.Errorf("Due transaction selection failed: %v", err)
		return
	}
	s.dispatcher.Dispatch(ctx, due)
}

func (s *Scheduler) runBudgetAlerts(ctx context.Context) {
	if err := s.monitor.Run(ctx, time.Now()); err != nil {
		s.log.Errorf("Budget alert sweep failed: %v", err)
	}
}

func (s *Scheduler) runMonthlyReports(ctx context.Context) {
	if err := s.reports.Run(ctx, time.Now()); err != nil {
		s.log.Errorf("Monthly report cycle failed: %v", err)
	}
}
