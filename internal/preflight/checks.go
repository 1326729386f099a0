package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/config"
	"github.com/cyrus-trixie/djmoviestore/internal/database"
	"github.com/cyrus-trixie/djmoviestore/internal/jobs"
)

// Check statuses
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string
	Message string
	Error   error
}

// Checker performs pre-flight checks before the server starts accepting traffic
type Checker struct {
	db  *database.DB
	cfg *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, cfg *config.Config) *Checker {
	return &Checker{db: db, cfg: cfg}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkTelegram(),
		c.checkSessionReaper(),
		c.checkSeedFile(),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case StatusPass:
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case StatusFail:
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case StatusWarning:
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

func (c *Checker) checkDatabaseConnection() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  StatusFail,
			Message: "Cannot connect to database",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Database Connection",
		Status:  StatusPass,
		Message: fmt.Sprintf("%s connection successful", c.db.Dialect),
	}
}

var requiredTables = []string{"categories", "djs", "movies"}

func (c *Checker) checkDatabaseSchema() CheckResult {
	query := "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?"
	if c.db.Dialect == database.DialectSQLite {
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}

	for _, table := range requiredTables {
		var count int
		err := c.db.QueryRow(query, table).Scan(&count)
		if err != nil || count == 0 {
			return CheckResult{
				Name:    "Database Schema",
				Status:  StatusFail,
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "Database Schema",
		Status:  StatusPass,
		Message: fmt.Sprintf("All %d required tables exist", len(requiredTables)),
	}
}

func (c *Checker) checkTelegram() CheckResult {
	if c.cfg.TelegramBotToken == "" {
		return CheckResult{
			Name:    "Telegram Bot",
			Status:  StatusWarning,
			Message: "TELEGRAM_BOT_TOKEN not set, ingestion bot disabled",
		}
	}
	if c.cfg.TelegramWebhookURL == "" {
		return CheckResult{
			Name:    "Telegram Bot",
			Status:  StatusPass,
			Message: "Long polling mode",
		}
	}
	return CheckResult{
		Name:    "Telegram Bot",
		Status:  StatusPass,
		Message: "Webhook mode",
	}
}

func (c *Checker) checkSessionReaper() CheckResult {
	if err := jobs.ValidateCron(c.cfg.SessionReaperCron); err != nil {
		return CheckResult{
			Name:    "Session Reaper",
			Status:  StatusFail,
			Message: fmt.Sprintf("Invalid SESSION_REAPER_CRON %q", c.cfg.SessionReaperCron),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Session Reaper",
		Status:  StatusPass,
		Message: fmt.Sprintf("Schedule %s, idle timeout %v", c.cfg.SessionReaperCron, c.cfg.SessionIdleTimeout),
	}
}

func (c *Checker) checkSeedFile() CheckResult {
	if c.cfg.CatalogSeedFile == "" {
		return CheckResult{
			Name:    "Catalog Seed",
			Status:  StatusPass,
			Message: "No seed file configured",
		}
	}
	if _, err := os.Stat(c.cfg.CatalogSeedFile); err != nil {
		return CheckResult{
			Name:    "Catalog Seed",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Seed file %s is not readable", c.cfg.CatalogSeedFile),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Catalog Seed",
		Status:  StatusPass,
		Message: fmt.Sprintf("Seed file %s found", c.cfg.CatalogSeedFile),
	}
}
