package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a temp dir so no config.yaml is found.
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.formr.org", cfg.Platform.BaseURL)
	assert.Equal(t, "contact_email", cfg.Platform.EmailFieldName)
	assert.Equal(t, "UTC", cfg.Platform.Timezone)
	assert.Equal(t, "https://api.mailgun.net", cfg.Mailer.BaseURL)
	assert.Equal(t, 5, cfg.Dispatch.MinIntervalSecs)
	assert.Equal(t, 30, cfg.Dispatch.SendTimeoutSecs)
	assert.Equal(t, 81, cfg.Pipeline.WeekShiftHours)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrentSessions)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cohortwatch.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
platform:
  survey_start_id: intake_2024
  survey_weekly_id: weekly_checkin
  email_field_name: email
pipeline:
  week_shift_hours: 57
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "intake_2024", cfg.Platform.SurveyStartID)
	assert.Equal(t, "weekly_checkin", cfg.Platform.SurveyWeeklyID)
	assert.Equal(t, "email", cfg.Platform.EmailFieldName)
	assert.Equal(t, 57, cfg.Pipeline.WeekShiftHours)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Dispatch.MinIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("COHORTWATCH_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func validCfg() *Config {
	return &Config{
		Platform: PlatformConfig{
			ClientID:       "id",
			ClientSecret:   "secret",
			SurveyStartID:  "intake",
			SurveyWeeklyID: "weekly",
		},
		Mailer: MailerConfig{
			Domain:        "mg.example.org",
			Key:           "key",
			SenderAddress: "study@example.org",
		},
	}
}

func TestValidate_StatusMode(t *testing.T) {
	cfg := validCfg()
	cfg.Mailer = MailerConfig{} // status mode needs no mailer
	assert.NoError(t, cfg.Validate("status"))
}

func TestValidate_MissingPlatformCreds(t *testing.T) {
	cfg := validCfg()
	cfg.Platform.ClientSecret = ""
	err := cfg.Validate("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_secret")
}

func TestValidate_MissingSurveyIDs(t *testing.T) {
	cfg := validCfg()
	cfg.Platform.SurveyWeeklyID = ""
	assert.Error(t, cfg.Validate("status"))
}

func TestValidate_RemindNeedsMailer(t *testing.T) {
	cfg := validCfg()
	assert.NoError(t, cfg.Validate("remind"))

	cfg.Mailer.SenderAddress = ""
	err := cfg.Validate("remind")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender_address")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
