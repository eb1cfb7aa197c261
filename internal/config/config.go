// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env holds the configuration values for the application.
type Env struct {
	Region        string
	Bucket        string
	Table         string
	QueueURL      string
	AppBaseURL    string
	AppEnv        string
	OpenAIKey     string
	PresignTTL    time.Duration
	DevBypassAuth bool
}

// Production reports whether the app runs in the production environment.
// Non-production environments expose diagnostic error details on failed
// recordings.
func (e Env) Production() bool { return e.AppEnv == "production" }

// MustLoad reads the environment variables and returns an Env struct.
//
// Only the table is required by every handler; bucket, queue URL and the
// OpenAI key are validated by the handlers that need them. The processing
// queue is expected to be configured with maxReceiveCount=3 and a 30s
// visibility timeout, which gives failed jobs three attempts with a 30s
// backoff.
func MustLoad() Env {
	ttlSec, _ := strconv.Atoi(get("PRESIGN_TTL_SECONDS", "300"))
	e := Env{
		Region:        get("AWS_REGION", "us-east-1"),
		Bucket:        get("S3_BUCKET", ""),
		Table:         must("DDB_TABLE"),
		QueueURL:      get("PROCESS_QUEUE_URL", ""),
		AppBaseURL:    get("APP_BASE_URL", ""),
		AppEnv:        get("APP_ENV", "production"),
		OpenAIKey:     get("OPENAI_API_KEY", ""),
		PresignTTL:    time.Duration(ttlSec) * time.Second,
		DevBypassAuth: get("DEV_BYPASS_AUTH", "") == "true",
	}
	return e
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// must returns the value of the environment variable k or panics if not set.
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return v
}
