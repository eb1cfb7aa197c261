// Package main links anonymous recordings to a freshly authenticated user,
// clearing their anonymous identifiers.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/track"
	"github.com/notepin/notepin-backend/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// linkRequest optionally names the anonymous id; the cookie is the default.
type linkRequest struct {
	AnonymousID string `json:"anonymous_id"`
}

// App holds the application state.
type App struct {
	env     config.Env
	repo    *ddb.Repo
	tracker *track.Tracker
}

func main() {
	env := config.MustLoad()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}
	app := &App{env: env, repo: repo, tracker: &track.Tracker{Events: repo}}
	lambda.Start(app.handler)
}

// handler reassigns the anonymous identity's recordings to the caller.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	sub := authz.UserSub(req, a.env.DevBypassAuth)
	if sub == "" {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	var body linkRequest
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			return httpx.Error(http.StatusBadRequest, "invalid json")
		}
	}
	anonID := body.AnonymousID
	if anonID == "" {
		// Fall back to the identity cookie the visitor recorded under.
		anonID = authz.AnonymousFromRequest(req)
	}
	if anonID == "" {
		return httpx.JSON(http.StatusOK, map[string]int{"linked": 0})
	}
	if err := validate.AnonymousID(anonID); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	count, err := a.repo.LinkAnonymousRecordings(ctx, anonID, sub)
	if err != nil {
		log.Printf("link: %s -> %s: %v", anonID, sub, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	if count > 0 {
		a.tracker.Track(ctx, track.EventAnonymousLinked, track.Props{
			UserID: sub,
			Metadata: map[string]any{
				"recordings_linked": count,
				"anonymous_id":      anonID,
			},
		})
	}

	return httpx.JSON(http.StatusOK, map[string]int{"linked": count})
}
