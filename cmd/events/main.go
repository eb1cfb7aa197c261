// Package main ingests allowlisted analytics events from the frontend.
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

// eventRequest is the expected JSON body for a client event.
type eventRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// App holds the application state.
type App struct {
	env     config.Env
	tracker *track.Tracker
}

func main() {
	env := config.MustLoad()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}
	app := &App{env: env, tracker: &track.Tracker{Events: repo}}
	lambda.Start(app.handler)
}

// handler records an allowlisted client event.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var body eventRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if err := validate.ClientEvent(body.Name); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	a.tracker.Track(ctx, body.Name, track.Props{
		UserID:   authz.UserSub(req, a.env.DevBypassAuth),
		Metadata: body.Metadata,
	})
	return httpx.JSON(http.StatusOK, map[string]bool{"success": true})
}
