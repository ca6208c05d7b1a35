// Package draft ensures a single draft application exists per submission.
package draft

import (
	"context"
	"fmt"
	"sync"

	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/metrics"
	"insurance-checkout/internal/models"

	"golang.org/x/sync/singleflight"
)

// Creator issues the backend creation request.
type Creator interface {
	CreateApplication(ctx context.Context, snapshot *models.FormSnapshot) (*models.Application, error)
}

// Store persists held drafts beyond the process, so that a redelivered job
// reuses the draft a previous worker created. Get returns nil, nil on a miss.
type Store interface {
	Get(ctx context.Context, submissionID string) (*models.Application, error)
	Put(ctx context.Context, submissionID string, app *models.Application) error
	Delete(ctx context.Context, submissionID string) error
}

// Registry holds at most one draft per submission id. Concurrent EnsureDraft
// calls for the same submission share one creation request.
type Registry struct {
	creator Creator
	store   Store
	logger  logger.Logger

	group singleflight.Group
	mu    sync.Mutex
	held  map[string]*models.Application
}

// NewRegistry returns a Registry. store may be nil for in-process only.
func NewRegistry(creator Creator, store Store, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Registry{
		creator: creator,
		store:   store,
		logger:  log.WithFields(map[string]interface{}{"component": "draft_registry"}),
		held:    make(map[string]*models.Application),
	}
}

// EnsureDraft returns the held draft for snapshot.SubmissionID, creating it
// with exactly one request if none is held. Creation errors leave nothing
// held so a later call can retry.
func (r *Registry) EnsureDraft(ctx context.Context, snapshot *models.FormSnapshot) (*models.Application, error) {
	if snapshot == nil || snapshot.SubmissionID == "" {
		return nil, errors.NewInvalidInputError("submissionId is required to ensure a draft")
	}
	id := snapshot.SubmissionID

	if app, ok := r.Held(id); ok {
		metrics.DraftCreations.WithLabelValues("reused").Inc()
		return app, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if app, ok := r.Held(id); ok {
			return app, nil
		}

		if r.store != nil {
			app, err := r.store.Get(ctx, id)
			if err != nil {
				return nil, errors.NewTransportFailedError("look up draft", err)
			}
			if app != nil {
				r.hold(id, app)
				r.logger.Info("reusing stored draft", map[string]interface{}{
					"submissionId":  id,
					"applicationId": app.ID,
				})
				metrics.DraftCreations.WithLabelValues("reused").Inc()
				return app, nil
			}
		}

		app, err := r.creator.CreateApplication(ctx, snapshot)
		if err != nil {
			metrics.DraftCreations.WithLabelValues("failed").Inc()
			return nil, err
		}
		r.hold(id, app)
		metrics.DraftCreations.WithLabelValues("created").Inc()

		r.logger.Info("draft created", map[string]interface{}{
			"submissionId":      id,
			"applicationId":     app.ID,
			"applicationNumber": app.Number,
		})

		if r.store != nil {
			if err := r.store.Put(ctx, id, app); err != nil {
				r.logger.Warn("failed to persist draft", map[string]interface{}{
					"submissionId": id,
					"error":        err,
				})
			}
		}
		return app, nil
	})
	if err != nil {
		return nil, err
	}

	app, ok := v.(*models.Application)
	if !ok {
		return nil, fmt.Errorf("unexpected draft type %T", v)
	}
	return app, nil
}

// Held returns the draft held for a submission without any network effect.
func (r *Registry) Held(submissionID string) (*models.Application, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.held[submissionID]
	return app, ok
}

// Reset forgets the draft for a submission so the next EnsureDraft creates a
// new one. The backend record is not deleted.
func (r *Registry) Reset(ctx context.Context, submissionID string) error {
	r.mu.Lock()
	delete(r.held, submissionID)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, submissionID); err != nil {
			return errors.NewTransportFailedError("reset draft", err)
		}
	}
	return nil
}

func (r *Registry) hold(id string, app *models.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held[id] = app
}
