package worker

import (
	"context"
	"net/http"

	"xpertly/internal/asset"
	"xpertly/internal/integration"
	"xpertly/internal/logging"
	"xpertly/internal/persist"
	"xpertly/internal/token"
	"xpertly/internal/users"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EventPublisher receives every run log event for live subscribers. Nil
// disables live updates.
type EventPublisher interface {
	Publish(executionID uuid.UUID, event []byte) error
}

// Deps bundles the external services an invocation talks to. One Deps value
// is shared by every run; the HTTP client pools connections underneath.
type Deps struct {
	HTTP         *http.Client
	Persist      *persist.Client
	Integrations *integration.Client
	Assets       *asset.Client
	Signer       *token.Signer
	Hub          EventPublisher
	Logger       logging.Logger
}

// Execute fans a triggered worker out into one invocation per tag, all
// sharing executionID. No tags means a single untagged run. It blocks until
// every run reaches a terminal state.
func Execute(ctx context.Context, tags []string, w *Worker, user *users.User, authToken string, executionID uuid.UUID, deps *Deps) error {
	runTags := tags
	if len(runTags) == 0 {
		runTags = []string{""}
	}

	invocations := make([]*Invocation, 0, len(runTags))
	for _, tag := range runTags {
		inv, err := NewInvocation(w, w.TenantID, user.UserEmail, user.UserID, authToken, executionID, tag, deps)
		if err != nil {
			return err
		}
		invocations = append(invocations, inv)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, inv := range invocations {
		inv := inv
		g.Go(func() error {
			inv.Start(ctx)
			return nil
		})
	}
	return g.Wait()
}
