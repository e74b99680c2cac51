// Package reports builds and sends the monthly financial report.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/sirupsen/logrus"
)

// fallbackInsights is used whenever the external insight provider is
// unavailable or returns garbage. Report delivery is the contract;
// insight quality is best-effort.
var fallbackInsights = []string{
	"Your highest expense category this month might need attention.",
	"Consider setting up a budget for better financial management.",
	"Track your recurring expenses to identify potential savings.",
}

// Store is the slice of the ledger store the generator reads.
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	MonthlyStats(ctx context.Context, userID string, from, to time.Time) (models.MonthlyStats, error)
}

// InsightProvider produces commentary for a month of stats.
type InsightProvider interface {
	MonthlyInsights(ctx context.Context, stats models.MonthlyStats, month string) ([]string, error)
}

// Notifier sends monthly report notifications.
type Notifier interface {
	SendMonthlyReport(to, username, month string, stats models.MonthlyStats, insights []string) error
}

// Generator builds last month's report for every user and sends it.
type Generator struct {
	store    Store
	insights InsightProvider
	notifier Notifier
	log      *logrus.Logger
}

// NewGenerator initializes a new report generator
func NewGenerator(store Store, insights InsightProvider, notifier Notifier, log *logrus.Logger) *Generator {
	return &Generator{store: store, insights: insights, notifier: notifier, log: log}
}

// Run generates and sends the report for the month preceding now.
// Per-user failures are logged and skipped.
func (g *Generator) Run(ctx context.Context, now time.Time) error {
	users, err := g.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	from, to, monthName := previousMonth(now)
	for _, user := range users {
		if err := g.sendReport(ctx, user, from, to, monthName); err != nil {
			g.log.Errorf("Monthly report failed for user %s: %v", user.ID, err)
		}
	}
	g.log.Infof("Monthly report cycle finished for %d users", len(users))
	return nil
}

func (g *Generator) sendReport(ctx context.Context, user models.User, from, to time.Time, monthName string) error {
	stats, err := g.store.MonthlyStats(ctx, user.ID, from, to)
	if err != nil {
		return fmt.Errorf("failed to aggregate stats: %w", err)
	}

	insights, err := g.insights.MonthlyInsights(ctx, stats, monthName)
	if err != nil || len(insights) == 0 {
		if err != nil {
			g.log.Warnf("Insight provider unavailable for user %s, using fallback: %v", user.ID, err)
		}
		insights = fallbackInsights
	}

	if err := g.notifier.SendMonthlyReport(user.Email, user.Name, monthName, stats, insights); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}

// previousMonth returns [first of last month, first of this month) and
// the month's name.
func previousMonth(now time.Time) (time.Time, time.Time, string) {
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	from := to.AddDate(0, -1, 0)
	return from, to, from.Month().String()
}
