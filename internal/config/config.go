package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Neonotso/budget-agent/internal/ledger"
)

type Config struct {
	// HTTP Server
	Port          string
	ToolTimeout   time.Duration
	ToolRateLimit int
	TrustProxy    bool

	// Backend selection
	DataBackend string

	// Ledger tables and behaviour
	TransactionsSheet    string
	BudgetsSheet         string
	EditStrategy         string
	CategorySource       string
	RequireKnownCategory bool

	// Google Sheets
	GoogleSpreadsheetID   string
	SpreadsheetIDFile     string
	SpreadsheetTitle      string
	SheetsValueInput      string
	GoogleOAuthClientFile string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenFile  string
	OAuthRedirectPort     string
	OAuthInteractive      bool

	// Database
	SQLiteDBPath string

	// Memory backend
	MemorySeedFile string

	// AMQP; an empty URL disables event publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		ToolTimeout:   getEnvDuration("TOOL_TIMEOUT", 30*time.Second),
		ToolRateLimit: getEnvInt("TOOL_RATE_LIMIT", 120),
		TrustProxy:    getEnvBool("TRUST_PROXY", false),

		DataBackend: getEnv("DATA_BACKEND", "sheets"),

		TransactionsSheet:    getEnv("TRANSACTIONS_SHEET_NAME", ledger.DefaultTransactionsTable),
		BudgetsSheet:         getEnv("BUDGETS_SHEET_NAME", ledger.DefaultBudgetsTable),
		EditStrategy:         getEnv("EDIT_STRATEGY", string(ledger.EditInPlace)),
		CategorySource:       getEnv("CATEGORY_SOURCE", string(ledger.CategoriesFromBudgets)),
		RequireKnownCategory: getEnvBool("REQUIRE_KNOWN_CATEGORY", true),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		SpreadsheetIDFile:     getEnv("SPREADSHEET_ID_FILE", "spreadsheet_id.txt"),
		SpreadsheetTitle:      getEnv("SPREADSHEET_TITLE", "Budget App"),
		SheetsValueInput:      getEnv("SHEETS_VALUE_INPUT", "USER_ENTERED"),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", "credentials.json"),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", "token.json"),
		OAuthRedirectPort:     getEnv("OAUTH_REDIRECT_PORT", "8085"),
		OAuthInteractive:      getEnvBool("OAUTH_INTERACTIVE", false),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budget.db"),

		MemorySeedFile: getEnv("MEMORY_SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budget.ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if strings.TrimSpace(c.TransactionsSheet) == "" || strings.TrimSpace(c.BudgetsSheet) == "" {
		errors = append(errors, "sheet names cannot be empty")
	} else if c.TransactionsSheet == c.BudgetsSheet {
		errors = append(errors, fmt.Sprintf("transactions and budgets sheets must differ, both are '%s'", c.TransactionsSheet))
	}
	if !ledger.EditStrategy(c.EditStrategy).IsValid() {
		errors = append(errors, fmt.Sprintf("invalid edit strategy '%s': must be 'in_place' or 'recreate'", c.EditStrategy))
	}
	if !ledger.CategorySource(c.CategorySource).IsValid() {
		errors = append(errors, fmt.Sprintf("invalid category source '%s': must be 'budgets' or 'all'", c.CategorySource))
	}

	if c.ToolTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid tool timeout %v: must be positive", c.ToolTimeout))
	} else if c.ToolTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid tool timeout %v: must be at most 5 minutes", c.ToolTimeout))
	}
	if c.ToolRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid tool rate limit %d: must not be negative", c.ToolRateLimit))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "memory" && c.MemorySeedFile != "" {
		if _, err := os.Stat(c.MemorySeedFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("memory seed file does not exist: %s", c.MemorySeedFile))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" && c.SpreadsheetIDFile == "" {
			errors = append(errors, "either GOOGLE_SPREADSHEET_ID or SPREADSHEET_ID_FILE must be set for sheets backend")
		}
		switch strings.ToUpper(c.SheetsValueInput) {
		case "USER_ENTERED", "RAW":
		default:
			errors = append(errors, fmt.Sprintf("invalid sheets value input '%s': must be 'USER_ENTERED' or 'RAW'", c.SheetsValueInput))
		}

		hasClientFile := c.GoogleOAuthClientFile != ""
		hasClientJSON := strings.TrimSpace(c.GoogleOAuthClientJSON) != ""
		if !hasClientFile && !hasClientJSON {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets backend")
		}
		if hasClientFile && !hasClientJSON {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile == "" {
			errors = append(errors, "GOOGLE_OAUTH_TOKEN_FILE must be provided for sheets backend")
		}
		if _, err := strconv.Atoi(c.OAuthRedirectPort); err != nil {
			errors = append(errors, fmt.Sprintf("invalid OAuth redirect port '%s': must be a number", c.OAuthRedirectPort))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// LedgerOptions translates the ledger settings into manager options.
func (c *Config) LedgerOptions() []ledger.Option {
	return []ledger.Option{
		ledger.WithTables(c.TransactionsSheet, c.BudgetsSheet),
		ledger.WithEditStrategy(ledger.EditStrategy(c.EditStrategy)),
		ledger.WithCategorySource(ledger.CategorySource(c.CategorySource)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
