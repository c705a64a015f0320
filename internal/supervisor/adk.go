package supervisor

import (
	"context"
	"fmt"

	"google.golang.org/adk/agent"
	adkrunner "google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	appName = "evalrunner"
	userID  = "evalrunner"
)

// runInput defines execution parameters for running an ADK agent.
type runInput struct {
	Agent   agent.Agent
	Message string
	OnEvent func(*session.Event)
}

// runAgent executes an ADK agent in a fresh in-memory session and drains its events.
func runAgent(ctx context.Context, input runInput) error {
	if input.Agent == nil {
		return fmt.Errorf("agent is required")
	}

	sessionService := session.InMemoryService()
	r, err := adkrunner.New(adkrunner.Config{
		AppName:        appName,
		Agent:          input.Agent,
		SessionService: sessionService,
	})
	if err != nil {
		return fmt.Errorf("create ADK runner: %w", err)
	}

	created, err := sessionService.Create(ctx, &session.CreateRequest{
		AppName: appName,
		UserID:  userID,
	})
	if err != nil {
		return fmt.Errorf("create ADK session: %w", err)
	}

	var msg *genai.Content
	if input.Message != "" {
		msg = genai.NewContentFromText(input.Message, genai.RoleUser)
	}

	events := r.Run(ctx, userID, created.Session.ID(), msg, agent.RunConfig{})
	for ev, runErr := range events {
		if runErr != nil {
			return runErr
		}
		if input.OnEvent != nil && ev != nil {
			input.OnEvent(ev)
		}
	}
	return nil
}
