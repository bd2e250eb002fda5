// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// Mail holds failure notification settings.
type Mail struct {
	Domain string
	APIKey string
	From   string
	To     string
}

// Archiver configures the daily archive service.
type Archiver struct {
	HealthAddr string

	Infra Infra

	// Bucket receives the exported archives.
	Bucket string
	// S3Endpoint overrides the AWS endpoint (MinIO and test servers).
	S3Endpoint string
	Region     string

	// SpoolDir is where export files are staged before upload.
	SpoolDir string

	// Timezone anchors the daily midnight run.
	Timezone string

	// MaxAttempts bounds archive retries within one day.
	MaxAttempts int
	// RetryDelay separates attempts for one day's run.
	RetryDelay time.Duration
	// ErrorDelay is the pause after an unexpected top-level failure.
	ErrorDelay time.Duration

	Mail Mail
}

// LoadArchiver reads archiver configuration from the environment.
func LoadArchiver() (Archiver, error) {
	infra, err := LoadInfra()
	if err != nil {
		return Archiver{}, err
	}
	cfg := Archiver{
		HealthAddr:  ParseString("PITWALL_HEALTH_ADDR", ":8080"),
		Infra:       infra,
		Bucket:      ParseString("PITWALL_ARCHIVE_BUCKET", ""),
		S3Endpoint:  ParseString("PITWALL_S3_ENDPOINT", ""),
		Region:      ParseString("PITWALL_S3_REGION", "us-east-1"),
		SpoolDir:    ParseString("PITWALL_SPOOL_DIR", "/var/spool/pitwall"),
		Timezone:    ParseString("PITWALL_ARCHIVE_TZ", "America/New_York"),
		MaxAttempts: ParseInt("PITWALL_ARCHIVE_ATTEMPTS", 3),
		RetryDelay:  ParseDuration("PITWALL_ARCHIVE_RETRY_DELAY", 5*time.Minute),
		ErrorDelay:  ParseDuration("PITWALL_ARCHIVE_ERROR_DELAY", time.Hour),
		Mail: Mail{
			Domain: ParseString("PITWALL_MAILGUN_DOMAIN", ""),
			APIKey: ParseString("PITWALL_MAILGUN_API_KEY", ""),
			From:   ParseString("PITWALL_MAIL_FROM", "archiver@pitwall.live"),
			To:     ParseString("PITWALL_MAIL_TO", ""),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the archiver cannot run with.
func (c Archiver) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("PITWALL_ARCHIVE_BUCKET is required")
	}
	if c.Infra.Postgres.DSN == "" {
		return fmt.Errorf("PITWALL_POSTGRES_DSN is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid PITWALL_ARCHIVE_TZ: %w", err)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("archive attempts must be at least 1")
	}
	return nil
}
