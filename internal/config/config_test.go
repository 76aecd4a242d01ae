package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neonotso/budget-agent/internal/ledger"
)

func validConfig() Config {
	return Config{
		Port:              "8080",
		ToolTimeout:       30 * time.Second,
		ToolRateLimit:     60,
		DataBackend:       "memory",
		TransactionsSheet: "Transactions",
		BudgetsSheet:      "Budgets",
		EditStrategy:      "in_place",
		CategorySource:    "budgets",
		LogFormat:         "text",
	}
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	clientFile := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(clientFile, []byte(`{}`), 0600))

	tests := []struct {
		name        string
		mutate      func(*Config)
		errorString string
	}{
		{name: "valid memory backend", mutate: func(*Config) {}},
		{
			name: "valid sqlite backend",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = filepath.Join(dir, "db", "budget.db")
			},
		},
		{
			name: "valid sheets backend",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.SpreadsheetIDFile = "spreadsheet_id.txt"
				c.SheetsValueInput = "user_entered"
				c.GoogleOAuthClientFile = clientFile
				c.GoogleOAuthTokenFile = filepath.Join(dir, "token.json")
				c.OAuthRedirectPort = "8085"
			},
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "postgres" },
			errorString: "invalid data backend 'postgres': must be one of [memory sheets sqlite]",
		},
		{
			name:        "same sheet twice",
			mutate:      func(c *Config) { c.BudgetsSheet = "Transactions" },
			errorString: "transactions and budgets sheets must differ",
		},
		{
			name:        "invalid edit strategy",
			mutate:      func(c *Config) { c.EditStrategy = "replace" },
			errorString: "invalid edit strategy 'replace'",
		},
		{
			name:        "invalid category source",
			mutate:      func(c *Config) { c.CategorySource = "everything" },
			errorString: "invalid category source 'everything'",
		},
		{
			name:        "zero tool timeout",
			mutate:      func(c *Config) { c.ToolTimeout = 0 },
			errorString: "invalid tool timeout 0s: must be positive",
		},
		{
			name:        "negative rate limit",
			mutate:      func(c *Config) { c.ToolRateLimit = -1 },
			errorString: "invalid tool rate limit -1",
		},
		{
			name:        "sqlite without path",
			mutate:      func(c *Config) { c.DataBackend = "sqlite" },
			errorString: "SQLite database path cannot be empty when using sqlite backend",
		},
		{
			name:        "missing memory seed",
			mutate:      func(c *Config) { c.MemorySeedFile = filepath.Join(dir, "missing.yaml") },
			errorString: "memory seed file does not exist",
		},
		{
			name:        "bad amqp scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672"; c.AMQPExchange = "x" },
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name:        "amqp without exchange",
			mutate:      func(c *Config) { c.AMQPURL = "amqp://localhost:5672" },
			errorString: "AMQP exchange name cannot be empty",
		},
		{
			name: "sheets without client",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.SpreadsheetIDFile = "spreadsheet_id.txt"
				c.SheetsValueInput = "RAW"
				c.GoogleOAuthTokenFile = "token.json"
				c.OAuthRedirectPort = "8085"
			},
			errorString: "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided",
		},
		{
			name: "sheets with missing client file",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleSpreadsheetID = "abc"
				c.SheetsValueInput = "RAW"
				c.GoogleOAuthClientFile = filepath.Join(dir, "nope.json")
				c.GoogleOAuthTokenFile = "token.json"
				c.OAuthRedirectPort = "8085"
			},
			errorString: "Google OAuth client file does not exist",
		},
		{
			name: "sheets with bad value input",
			mutate: func(c *Config) {
				c.DataBackend = "sheets"
				c.GoogleSpreadsheetID = "abc"
				c.SheetsValueInput = "FORMULA"
				c.GoogleOAuthClientJSON = `{"installed":{}}`
				c.GoogleOAuthTokenFile = "token.json"
				c.OAuthRedirectPort = "8085"
			},
			errorString: "invalid sheets value input 'FORMULA'",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			errorString: "invalid log format 'xml'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorString)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "x"
	cfg.EditStrategy = "y"
	cfg.LogFormat = "z"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
	assert.Contains(t, err.Error(), "invalid edit strategy")
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATA_BACKEND", "EDIT_STRATEGY", "REQUIRE_KNOWN_CATEGORY", "TOOL_TIMEOUT", "AMQP_URL", "TRUST_PROXY"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sheets", cfg.DataBackend)
	assert.Equal(t, "in_place", cfg.EditStrategy)
	assert.True(t, cfg.RequireKnownCategory)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Empty(t, cfg.AMQPURL)
	assert.False(t, cfg.TrustProxy)
	assert.Equal(t, "token.json", cfg.GoogleOAuthTokenFile)
	assert.Equal(t, "spreadsheet_id.txt", cfg.SpreadsheetIDFile)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("EDIT_STRATEGY", "recreate")
	t.Setenv("CATEGORY_SOURCE", "all")
	t.Setenv("REQUIRE_KNOWN_CATEGORY", "false")
	t.Setenv("TOOL_TIMEOUT", "5s")
	t.Setenv("TOOL_RATE_LIMIT", "not-a-number")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("TRANSACTIONS_SHEET_NAME", "Tx")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DataBackend)
	assert.Equal(t, "recreate", cfg.EditStrategy)
	assert.Equal(t, "all", cfg.CategorySource)
	assert.False(t, cfg.RequireKnownCategory)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 120, cfg.ToolRateLimit)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, "Tx", cfg.TransactionsSheet)

	assert.Len(t, cfg.LedgerOptions(), 3)
	m := ledger.New(nil, cfg.LedgerOptions()...)
	assert.Equal(t, ledger.EditRecreate, m.EditStrategy())
}
