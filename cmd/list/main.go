// Package main powers the dashboard by listing all recordings for the
// current owner, authenticated or anonymous.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const pageSize = 100

// recordingSummary is the list projection; transcripts and full AI metadata
// stay on the detail endpoint.
type recordingSummary struct {
	ID              string                 `json:"id"`
	Status          models.RecordingStatus `json:"status"`
	AITitle         string                 `json:"ai_title,omitempty"`
	AISummary       string                 `json:"ai_summary,omitempty"`
	AIActionItems   []string               `json:"ai_action_items,omitempty"`
	DurationSeconds *int                   `json:"duration_seconds,omitempty"`
	CreatedAt       string                 `json:"created_at"`
}

// App holds the application state.
type App struct {
	env  config.Env
	repo *ddb.Repo
}

func main() {
	env := config.MustLoad()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	app := &App{env: env, repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}}
	lambda.Start(app.handler)
}

// handler lists recordings for the request's identity.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	identity := authz.Resolve(req, a.env.DevBypassAuth)
	owner := identity.OwnerKey()
	if owner == "" {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	recs, err := a.repo.ListRecordingsByOwner(ctx, owner, pageSize)
	if err != nil {
		log.Printf("list: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	items := make([]recordingSummary, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		items = append(items, recordingSummary{
			ID:              rec.ID,
			Status:          rec.Status,
			AITitle:         rec.AITitle,
			AISummary:       rec.AISummary,
			AIActionItems:   rec.AIActionItems,
			DurationSeconds: rec.DurationSeconds,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return httpx.JSON(http.StatusOK, map[string]any{"recordings": items})
}
