package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/canopyhq/canopy/internal/adapter/otel"
	"github.com/canopyhq/canopy/internal/domain"
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/port/taskqueue"
)

// QueueScheduler publishes change records to the task queue. It is the
// production Scheduler: the gate fires changes through it without waiting
// for regeneration.
type QueueScheduler struct {
	queue taskqueue.Queue
}

// NewQueueScheduler creates a QueueScheduler.
func NewQueueScheduler(q taskqueue.Queue) *QueueScheduler {
	return &QueueScheduler{queue: q}
}

// Schedule encodes the change and publishes it on the subject matching
// its kind.
func (s *QueueScheduler) Schedule(ctx context.Context, c Change) error {
	subject, err := subjectFor(c.Kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return s.queue.Publish(ctx, subject, data)
}

func subjectFor(kind ChangeKind) (string, error) {
	switch kind {
	case ChangeEntity:
		return taskqueue.SubjectEntityChanged, nil
	case ChangeType:
		return taskqueue.SubjectTypeChanged, nil
	case ChangeOrgPerms:
		return taskqueue.SubjectOrgPermChanged, nil
	default:
		return "", fmt.Errorf("unknown change kind %q", kind)
	}
}

// Invalidator turns change records into regeneration work. Each change
// fans out into independent rebuild tasks; a task failure never stops the
// others, and the joined error reaches the queue's error sink rather than
// any request path.
type Invalidator struct {
	gate    *Gate
	mat     *Materializer
	types   *TypeService
	orgs    *OrgService
	metrics *otel.Metrics
	log     *slog.Logger
}

// NewInvalidator creates an Invalidator. metrics may be nil.
func NewInvalidator(gate *Gate, mat *Materializer, types *TypeService, orgs *OrgService, metrics *otel.Metrics, log *slog.Logger) *Invalidator {
	if log == nil {
		log = slog.Default()
	}
	return &Invalidator{gate: gate, mat: mat, types: types, orgs: orgs, metrics: metrics, log: log}
}

// Subscribe wires the invalidator's handlers into the queue. The returned
// cancel function detaches all three subscriptions.
func (inv *Invalidator) Subscribe(ctx context.Context, q taskqueue.Queue) (func(), error) {
	var cancels []func()
	for subject, fn := range map[string]func(context.Context, Change) error{
		taskqueue.SubjectEntityChanged:  inv.EntityChanged,
		taskqueue.SubjectTypeChanged:    inv.TypeChanged,
		taskqueue.SubjectOrgPermChanged: inv.OrgPermissionsChanged,
	} {
		fn := fn
		cancel, err := q.Subscribe(ctx, subject, func(ctx context.Context, subj string, data []byte) error {
			var c Change
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("decode change on %s: %w", subj, err)
			}
			if err := fn(ctx, c); err != nil {
				if inv.metrics != nil {
					inv.metrics.InvalidationsFailed.Add(ctx, 1)
				}
				return err
			}
			return nil
		})
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}, nil
}

// EntityChanged rebuilds the views an entity write can affect: the type's
// global bundles, the owning organization's bundles, and both manifest
// families.
func (inv *Invalidator) EntityChanged(ctx context.Context, c Change) error {
	typeID, orgID, err := inv.resolveEntityChange(ctx, c)
	if err != nil {
		return err
	}

	tasks := []regenTask{
		{"global bundles", func() error { return inv.mat.RegenerateGlobalBundles(ctx, typeID) }},
		{"global manifests", func() error { return inv.mat.RegenerateGlobalManifests(ctx) }},
	}
	if orgID != nil {
		id := *orgID
		tasks = append(tasks,
			regenTask{"org bundles", func() error { return inv.mat.RegenerateOrgBundles(ctx, id, typeID) }},
			regenTask{"org manifests", func() error { return inv.mat.RegenerateOrgManifests(ctx, id) }},
		)
	}
	return inv.runTasks(tasks)
}

// TypeChanged rebuilds every view derived from one type definition:
// global bundles and manifests plus each organization's bundles of that
// type.
func (inv *Invalidator) TypeChanged(ctx context.Context, c Change) error {
	typeID, err := uuid.Parse(c.TypeID)
	if err != nil {
		return fmt.Errorf("change without valid type id: %w", err)
	}
	orgIDs, err := inv.orgs.ListOrgIDs(ctx, systemCaps())
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	tasks := []regenTask{
		{"global bundles", func() error { return inv.mat.RegenerateGlobalBundles(ctx, typeID) }},
		{"global manifests", func() error { return inv.mat.RegenerateGlobalManifests(ctx) }},
	}
	for _, orgID := range orgIDs {
		id := orgID
		tasks = append(tasks,
			regenTask{"org bundles " + id.String(), func() error { return inv.mat.RegenerateOrgBundles(ctx, id, typeID) }},
			regenTask{"org manifests " + id.String(), func() error { return inv.mat.RegenerateOrgManifests(ctx, id) }},
		)
	}
	return inv.runTasks(tasks)
}

// OrgPermissionsChanged rebuilds one organization's bundles for every
// type together with its manifests.
func (inv *Invalidator) OrgPermissionsChanged(ctx context.Context, c Change) error {
	orgID, err := uuid.Parse(c.OrgID)
	if err != nil {
		return fmt.Errorf("change without valid org id: %w", err)
	}
	types, err := inv.types.List(ctx, systemCaps())
	if err != nil {
		return fmt.Errorf("list types: %w", err)
	}

	var tasks []regenTask
	for i := range types {
		typeID := types[i].ID
		tasks = append(tasks, regenTask{
			"org bundles " + typeID.String(),
			func() error { return inv.mat.RegenerateOrgBundles(ctx, orgID, typeID) },
		})
	}
	tasks = append(tasks, regenTask{
		"org manifests",
		func() error { return inv.mat.RegenerateOrgManifests(ctx, orgID) },
	})
	return inv.runTasks(tasks)
}

// RegenerateEverything rebuilds all bundles and manifests synchronously.
// Queue-driven invalidation repairs views incrementally; this is the
// full-rebuild path for operators and the admin command.
func (inv *Invalidator) RegenerateEverything(ctx context.Context) error {
	start := time.Now()
	types, err := inv.types.List(ctx, systemCaps())
	if err != nil {
		return fmt.Errorf("list types: %w", err)
	}
	orgIDs, err := inv.orgs.ListOrgIDs(ctx, systemCaps())
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	var tasks []regenTask
	for i := range types {
		typeID := types[i].ID
		tasks = append(tasks, regenTask{
			"global bundles " + typeID.String(),
			func() error { return inv.mat.RegenerateGlobalBundles(ctx, typeID) },
		})
		for _, orgID := range orgIDs {
			id := orgID
			tasks = append(tasks, regenTask{
				fmt.Sprintf("org %s bundles %s", id, typeID),
				func() error { return inv.mat.RegenerateOrgBundles(ctx, id, typeID) },
			})
		}
	}
	tasks = append(tasks, regenTask{
		"global manifests",
		func() error { return inv.mat.RegenerateGlobalManifests(ctx) },
	})
	for _, orgID := range orgIDs {
		id := orgID
		tasks = append(tasks, regenTask{
			"org manifests " + id.String(),
			func() error { return inv.mat.RegenerateOrgManifests(ctx, id) },
		})
	}
	err = inv.runTasks(tasks)
	if inv.metrics != nil {
		inv.metrics.RegenDuration.Record(ctx, time.Since(start).Seconds())
	}
	return err
}

// resolveEntityChange determines the type and organization a change
// concerns. Changes from latest-pointer writes carry only the entity id;
// the stub supplies the rest. Deletions purge the stub first, so they
// must carry the type id themselves.
func (inv *Invalidator) resolveEntityChange(ctx context.Context, c Change) (uuid.UUID, *uuid.UUID, error) {
	var orgID *uuid.UUID
	if c.OrgID != "" {
		id, err := uuid.Parse(c.OrgID)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid org id in change: %w", err)
		}
		orgID = &id
	}

	if c.TypeID != "" {
		typeID, err := uuid.Parse(c.TypeID)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid type id in change: %w", err)
		}
		return typeID, orgID, nil
	}

	entityID, err := uuid.Parse(c.EntityID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("change without entity or type id: %w", err)
	}
	var stub entity.Stub
	if err := inv.gate.ReadJSON(ctx, stubPath(entityID), nil, &stub, nil); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, nil, fmt.Errorf("entity %s has no stub, change undispatchable: %w", entityID, err)
		}
		return uuid.Nil, nil, err
	}
	return stub.EntityTypeID, stub.OrganizationID, nil
}

type regenTask struct {
	name string
	run  func() error
}

// runTasks executes rebuild tasks concurrently. Every task runs to
// completion regardless of the others; the failures come back joined.
func (inv *Invalidator) runTasks(tasks []regenTask) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(4)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := task.run(); err != nil {
				inv.log.Error("regeneration task failed", "task", task.name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", task.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
