package email

import (
	"fmt"
	"net/smtp"
	"sort"

	"github.com/avezhov/finance-service/internal/config"
	"github.com/avezhov/finance-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendBudgetAlert sends a budget threshold alert email
func (s *Sender) SendBudgetAlert(to, username, accountName string, percentageUsed, budgetAmount, totalExpenses decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Budget Alert for %s", accountName)

	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += fmt.Sprintf(
		"You have used %s%% of your monthly budget on account %s.\n"+
			"Spent so far: %s of %s.\n"+
			"Consider reviewing your upcoming expenses for the rest of the month.\n",
		percentageUsed.StringFixed(1), accountName,
		totalExpenses.StringFixed(2), budgetAmount.StringFixed(2),
	)
	body += "\nBest regards,\nFinance Service"
	e.Text = []byte(body)

	return s.send(e, to)
}

// SendMonthlyReport sends the monthly financial report email
func (s *Sender) SendMonthlyReport(to, username, month string, stats models.MonthlyStats, insights []string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Financial Report for %s", month)

	net := stats.TotalIncome.Sub(stats.TotalExpense)
	body := fmt.Sprintf("Dear %s,\n\n", username)
	body += fmt.Sprintf(
		"Here is your financial summary for %s:\n"+
			"Total income: %s\n"+
			"Total expenses: %s\n"+
			"Net: %s\n"+
			"Transactions: %d\n",
		month,
		stats.TotalIncome.StringFixed(2),
		stats.TotalExpense.StringFixed(2),
		net.StringFixed(2),
		stats.TransactionCount,
	)

	if len(stats.ByCategory) > 0 {
		body += "\nExpenses by category:\n"
		categories := make([]string, 0, len(stats.ByCategory))
		for category := range stats.ByCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			body += fmt.Sprintf("  %s: %s\n", category, stats.ByCategory[category].StringFixed(2))
		}
	}

	if len(insights) > 0 {
		body += "\nInsights:\n"
		for _, insight := range insights {
			body += fmt.Sprintf("  - %s\n", insight)
		}
	}

	body += "\nBest regards,\nFinance Service"
	e.Text = []byte(body)

	return s.send(e, to)
}

func (s *Sender) send(e *email.Email, to string) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
