// Package importer turns a normalized generation result into persisted,
// hierarchy-coded records across the four dependent entity collections.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"planline/internal/domain"
	"planline/internal/generate"
	"planline/internal/hierarchy"
	"planline/internal/store"
)

// Warning kinds recorded in the summary for locally absorbed problems.
const (
	WarnUnresolvedParent            = "unresolved_parent"
	WarnUnresolvedEpicLink          = "unresolved_epic_link"
	WarnUnresolvedRequirementLink   = "unresolved_requirement_link"
	WarnUnresolvedClientRequirement = "unresolved_client_requirement"
)

// Importer runs the dependency-ordered persistence pipeline. All store
// calls are issued strictly one at a time: later phases need identifiers
// produced by earlier writes and the store has no multi-record atomicity.
type Importer struct {
	Store store.Store
	Log   *logrus.Logger
	NewID func() string
	Now   func() time.Time
}

// New returns an Importer with uuid identifiers and the real clock.
func New(s store.Store, log *logrus.Logger) Importer {
	return Importer{
		Store: s,
		Log:   log,
		NewID: uuid.NewString,
		Now:   time.Now,
	}
}

func (imp Importer) now() string {
	if imp.Now != nil {
		return imp.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (imp Importer) newID() string {
	if imp.NewID != nil {
		return imp.NewID()
	}
	return uuid.NewString()
}

func (imp Importer) log() *logrus.Logger {
	if imp.Log != nil {
		return imp.Log
	}
	return logrus.StandardLogger()
}

// Run persists the generation result for one project. Phases execute in
// strict order: client requirements, functional requirement roots, then
// children, epics, tasks. On the first store failure the remaining work is
// abandoned and the returned summary holds everything created so far;
// nothing is rolled back automatically (use Cleanup for that).
func (imp Importer) Run(ctx context.Context, project domain.Project, res *generate.Result) (*Summary, error) {
	sum := NewSummary()
	asg := hierarchy.NewAssigner(project.Name)

	crIDs, err := imp.persistClientRequirements(ctx, project, res, asg, sum)
	if err != nil {
		return sum, err
	}
	frIDs, err := imp.persistFunctionalRequirements(ctx, project, res, asg, crIDs, sum)
	if err != nil {
		return sum, err
	}
	epicIDs, err := imp.persistEpics(ctx, project, res, asg, frIDs, sum)
	if err != nil {
		return sum, err
	}
	if err := imp.persistTasks(ctx, project, res, asg, epicIDs, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

func (imp Importer) persistClientRequirements(ctx context.Context, project domain.Project, res *generate.Result, asg *hierarchy.Assigner, sum *Summary) (map[int]string, error) {
	ids := make(map[int]string, len(res.ClientRequirements))
	for i, in := range res.ClientRequirements {
		cr := domain.ClientRequirement{
			ID:          imp.newID(),
			ProjectID:   project.ID,
			HierarchyID: asg.ClientRequirement(),
			Title:       in.Title,
			ClientName:  in.ClientName,
			Description: in.Description,
			Priority:    in.Priority,
			Status:      domain.StatusDraft,
			CreatedAt:   imp.now(),
		}
		if err := imp.create(ctx, domain.CollectionClientRequirements, cr.ID, cr, sum); err != nil {
			return ids, err
		}
		ids[i] = cr.ID
		sum.ClientRequirements = append(sum.ClientRequirements, Ref{ID: cr.ID, HierarchyID: cr.HierarchyID})
	}
	return ids, nil
}

// persistFunctionalRequirements runs two passes over the requirement
// forest: roots first (in input order), then children, so a parent's
// persisted id and hierarchy code always exist before any child needs
// them. A child whose parent reference does not resolve is skipped.
func (imp Importer) persistFunctionalRequirements(ctx context.Context, project domain.Project, res *generate.Result, asg *hierarchy.Assigner, crIDs map[int]string, sum *Summary) (map[int]string, error) {
	ids := make(map[int]string, len(res.FunctionalRequirements))

	for i, in := range res.FunctionalRequirements {
		if in.ParentID != "" {
			continue
		}
		fr := imp.buildRequirement(project, in, asg.RootRequirement(), nil)
		imp.linkClientRequirement(&fr, in, i, crIDs, sum)
		if err := imp.create(ctx, domain.CollectionRequirements, fr.ID, fr, sum); err != nil {
			return ids, err
		}
		ids[i] = fr.ID
		sum.FunctionalRequirements = append(sum.FunctionalRequirements, Ref{ID: fr.ID, HierarchyID: fr.HierarchyID})
	}

	for i, in := range res.FunctionalRequirements {
		if in.ParentID == "" {
			continue
		}
		idx, ok := parseIndexKey(in.ParentID, "fr-")
		parentID := ""
		if ok {
			parentID = ids[idx]
		}
		if parentID == "" {
			sum.warn(Warning{Kind: WarnUnresolvedParent, Entity: "functionalRequirement", Index: i, Ref: in.ParentID})
			imp.log().WithFields(logrus.Fields{"index": i, "parent": in.ParentID}).
				Warn("skipping functional requirement: parent not resolved")
			continue
		}
		parent, err := imp.Store.Get(ctx, domain.CollectionRequirements, parentID)
		if err != nil {
			return ids, imp.storeErr(domain.CollectionRequirements, "get", sum, err)
		}
		parentCode := parent.Fields.String("hierarchy_id")
		fr := imp.buildRequirement(project, in, asg.ChildRequirement(parentCode), &parentID)
		imp.linkClientRequirement(&fr, in, i, crIDs, sum)
		if err := imp.create(ctx, domain.CollectionRequirements, fr.ID, fr, sum); err != nil {
			return ids, err
		}
		ids[i] = fr.ID
		sum.FunctionalRequirements = append(sum.FunctionalRequirements, Ref{ID: fr.ID, HierarchyID: fr.HierarchyID})
	}
	return ids, nil
}

func (imp Importer) buildRequirement(project domain.Project, in generate.FunctionalRequirementInput, code string, parentID *string) domain.FunctionalRequirement {
	return domain.FunctionalRequirement{
		ID:                 imp.newID(),
		ProjectID:          project.ID,
		HierarchyID:        code,
		Title:              in.Title,
		Description:        in.Description,
		Type:               in.Type,
		Priority:           in.Priority,
		Complexity:         in.Complexity,
		Status:             domain.StatusDraft,
		ParentID:           parentID,
		AcceptanceCriteria: in.AcceptanceCriteria,
		BusinessRules:      in.BusinessRules,
		CreatedAt:          imp.now(),
	}
}

func (imp Importer) linkClientRequirement(fr *domain.FunctionalRequirement, in generate.FunctionalRequirementInput, index int, crIDs map[int]string, sum *Summary) {
	if in.ClientRequirementID == "" {
		return
	}
	if idx, ok := parseIndexKey(in.ClientRequirementID, "cr-"); ok {
		if id, found := crIDs[idx]; found {
			fr.ClientRequirementID = &id
			return
		}
	}
	sum.warn(Warning{Kind: WarnUnresolvedClientRequirement, Entity: "functionalRequirement", Index: index, Ref: in.ClientRequirementID})
	imp.log().WithFields(logrus.Fields{"index": index, "ref": in.ClientRequirementID}).
		Warn("functional requirement client link not resolved")
}

// persistEpics links each epic to every functional requirement reference
// that resolves. Epics are created even when no requirement exists.
func (imp Importer) persistEpics(ctx context.Context, project domain.Project, res *generate.Result, asg *hierarchy.Assigner, frIDs map[int]string, sum *Summary) ([]string, error) {
	ids := make([]string, 0, len(res.Epics))
	for i, in := range res.Epics {
		linked := make([]string, 0, len(in.FunctionalRequirementIDs))
		for _, ref := range in.FunctionalRequirementIDs {
			idx, ok := parseIndexKey(ref, "fr-")
			if id := frIDs[idx]; ok && id != "" {
				linked = append(linked, id)
				continue
			}
			sum.warn(Warning{Kind: WarnUnresolvedRequirementLink, Entity: "epic", Index: i, Ref: ref})
			imp.log().WithFields(logrus.Fields{"index": i, "ref": ref}).
				Warn("epic requirement link not resolved")
		}
		epic := domain.Epic{
			ID:             imp.newID(),
			ProjectID:      project.ID,
			HierarchyID:    asg.Epic(),
			Name:           in.Name,
			Description:    in.Description,
			Color:          in.Color,
			Status:         domain.StatusPlanned,
			StartDate:      in.StartDate,
			EndDate:        in.EndDate,
			RequirementIDs: linked,
			CreatedAt:      imp.now(),
		}
		if err := imp.create(ctx, domain.CollectionEpics, epic.ID, epic, sum); err != nil {
			return ids, err
		}
		ids = append(ids, epic.ID)
		sum.Epics = append(sum.Epics, Ref{ID: epic.ID, HierarchyID: epic.HierarchyID})
	}
	return ids, nil
}

// persistTasks resolves each task's epic reference by parsing it as an
// array index into the epic list. A reference that does not parse or is
// out of range leaves the task unlinked; the task itself is still created.
func (imp Importer) persistTasks(ctx context.Context, project domain.Project, res *generate.Result, asg *hierarchy.Assigner, epicIDs []string, sum *Summary) error {
	for i, in := range res.Tasks {
		task := domain.Task{
			ID:             imp.newID(),
			ProjectID:      project.ID,
			HierarchyID:    asg.Task(),
			Title:          in.Title,
			Description:    in.Description,
			Priority:       in.Priority,
			Status:         domain.StatusTodo,
			EstimatedHours: in.EstimatedHours,
			Labels:         in.Labels,
			CreatedAt:      imp.now(),
		}
		if in.EpicID != "" {
			idx, err := strconv.Atoi(strings.TrimSpace(in.EpicID))
			if err == nil && idx >= 0 && idx < len(epicIDs) {
				id := epicIDs[idx]
				task.EpicID = &id
			} else {
				sum.warn(Warning{Kind: WarnUnresolvedEpicLink, Entity: "task", Index: i, Ref: in.EpicID})
				imp.log().WithFields(logrus.Fields{"index": i, "ref": in.EpicID}).
					Warn("task epic link not resolved; creating without link")
			}
		}
		if err := imp.create(ctx, domain.CollectionTasks, task.ID, task, sum); err != nil {
			return err
		}
		sum.Tasks = append(sum.Tasks, Ref{ID: task.ID, HierarchyID: task.HierarchyID})
	}
	return nil
}

func (imp Importer) create(ctx context.Context, collection, id string, entity any, sum *Summary) error {
	fields, err := store.Encode(entity)
	if err != nil {
		return imp.storeErr(collection, "encode", sum, err)
	}
	if _, err := imp.Store.Create(ctx, collection, id, fields); err != nil {
		return imp.storeErr(collection, "create", sum, err)
	}
	sum.Created = append(sum.Created, store.Key{Collection: collection, ID: id})
	return nil
}

func (imp Importer) storeErr(collection, op string, sum *Summary, err error) error {
	return &StoreError{Collection: collection, Op: op, Summary: sum, Err: err}
}

// Cleanup deletes every record the summary recorded, newest first. It is
// the explicit compensation pass for a failed run; the store offers no
// transactional rollback.
func (imp Importer) Cleanup(ctx context.Context, sum *Summary) error {
	var firstErr error
	for i := len(sum.Created) - 1; i >= 0; i-- {
		key := sum.Created[i]
		if err := imp.Store.Delete(ctx, key.Collection, key.ID); err != nil {
			imp.log().WithFields(logrus.Fields{"collection": key.Collection, "id": key.ID}).
				WithError(err).Warn("cleanup delete failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// parseIndexKey parses an index-based reference such as "fr-3" (or a bare
// "3") into an array position.
func parseIndexKey(ref, prefix string) (int, bool) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, prefix)
	i, err := strconv.Atoi(ref)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// StoreError is a fatal store failure carrying the partial summary so
// callers can report how far the pipeline got before aborting.
type StoreError struct {
	Collection string
	Op         string
	Summary    *Summary
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s failed: %v (%s)", e.Op, e.Collection, e.Err, e.Summary.countsString())
}

func (e *StoreError) Unwrap() error { return e.Err }
