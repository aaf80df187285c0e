package repo

import (
	"context"
	"errors"
	"fmt"

	"planline/internal/domain"
	"planline/internal/store"
)

// ErrNotFound mirrors the store sentinel for callers that only import repo.
var ErrNotFound = store.ErrNotFound

// Repo is a typed layer over the document store used by the HTTP API and
// CLI. The import pipeline talks to the store directly; this layer only
// serves ordinary read and edit flows.
type Repo struct {
	Store store.Store
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	fields, err := store.Encode(p)
	if err != nil {
		return err
	}
	_, err = r.Store.Create(ctx, domain.CollectionProjects, p.ID, fields)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	rec, err := r.Store.Get(ctx, domain.CollectionProjects, id)
	if err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	if err := rec.Decode(&p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return decodeAll[domain.Project](ctx, r, domain.CollectionProjects, "")
}

func (r Repo) ListClientRequirements(ctx context.Context, projectID string) ([]domain.ClientRequirement, error) {
	return decodeAll[domain.ClientRequirement](ctx, r, domain.CollectionClientRequirements, projectID)
}

func (r Repo) ListRequirements(ctx context.Context, projectID string) ([]domain.FunctionalRequirement, error) {
	return decodeAll[domain.FunctionalRequirement](ctx, r, domain.CollectionRequirements, projectID)
}

func (r Repo) ListEpics(ctx context.Context, projectID string) ([]domain.Epic, error) {
	return decodeAll[domain.Epic](ctx, r, domain.CollectionEpics, projectID)
}

func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return decodeAll[domain.Task](ctx, r, domain.CollectionTasks, projectID)
}

func (r Repo) ListSprints(ctx context.Context, projectID string) ([]domain.Sprint, error) {
	return decodeAll[domain.Sprint](ctx, r, domain.CollectionSprints, projectID)
}

func (r Repo) InsertSprint(ctx context.Context, s domain.Sprint) error {
	fields, err := store.Encode(s)
	if err != nil {
		return err
	}
	_, err = r.Store.Create(ctx, domain.CollectionSprints, s.ID, fields)
	return err
}

func (r Repo) ListEvents(ctx context.Context, projectID string) ([]domain.Event, error) {
	return decodeAll[domain.Event](ctx, r, domain.CollectionEvents, projectID)
}

// ProjectExists returns a friendlier error than the raw store sentinel.
func (r Repo) ProjectExists(ctx context.Context, id string) error {
	_, err := r.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return err
}

func decodeAll[T any](ctx context.Context, r Repo, collection, projectID string) ([]T, error) {
	recs, err := r.Store.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	res := make([]T, 0, len(recs))
	for _, rec := range recs {
		if projectID != "" && rec.Fields.String("project_id") != projectID {
			continue
		}
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, rec.ID, err)
		}
		res = append(res, v)
	}
	return res, nil
}
