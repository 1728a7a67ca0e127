package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/logging"
	"github.com/minimum2scp/geco/internal/memo"
)

// Loader loads projects and instances through the memoizing fetcher. It
// mirrors what it loaded in memory, so a Loader must be created per command
// invocation. Safe for concurrent use by refresh workers.
type Loader struct {
	source  Source
	fetcher *memo.Fetcher

	mu             sync.Mutex
	projects       []Project
	projectsLoaded bool
	instances      map[string][]VMInstance
}

// NewLoader creates a Loader reading from source.
func NewLoader(source Source, fetcher *memo.Fetcher) *Loader {
	return &Loader{
		source:    source,
		fetcher:   fetcher,
		instances: make(map[string][]VMInstance),
	}
}

// Projects returns all visible projects sorted by id. Unless force is set,
// the in-memory mirror and then the cache are consulted first; force always
// calls the source and overwrites the cache entry.
func (l *Loader) Projects(ctx context.Context, tx *cache.Tx, force bool) ([]Project, error) {
	if !force {
		l.mu.Lock()
		if l.projectsLoaded {
			projects := l.projects
			l.mu.Unlock()
			return projects, nil
		}
		l.mu.Unlock()
	}

	projects, err := memo.Fetch(ctx, tx, l.fetcher, memo.ProjectsKey(), force, l.listProjects)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.projects = projects
	l.projectsLoaded = true
	l.mu.Unlock()
	return projects, nil
}

func (l *Loader) listProjects(ctx context.Context) ([]Project, error) {
	raw, err := l.source.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing projects: %w", ErrRemoteInventory, err)
	}

	projects := make([]Project, 0, len(raw))
	for _, r := range raw {
		projects = append(projects, newProject(r))
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

// Instances returns the instances of one project sorted by name. A project
// the source reports ErrPermission for yields an empty, cached result and a
// warning instead of an error.
func (l *Loader) Instances(ctx context.Context, tx *cache.Tx, force bool, projectID string) ([]VMInstance, error) {
	if !force {
		l.mu.Lock()
		if instances, ok := l.instances[projectID]; ok {
			l.mu.Unlock()
			return instances, nil
		}
		l.mu.Unlock()
	}

	instances, err := memo.Fetch(ctx, tx, l.fetcher, memo.InstancesKey(projectID), force,
		func(ctx context.Context) ([]VMInstance, error) {
			return l.listInstances(ctx, projectID)
		})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.instances[projectID] = instances
	l.mu.Unlock()
	return instances, nil
}

func (l *Loader) listInstances(ctx context.Context, projectID string) ([]VMInstance, error) {
	raw, err := l.source.ListInstances(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrPermission) {
			logging.FromContext(ctx).Warn().
				Str("component", "inventory").
				Str("project", projectID).
				Err(err).
				Msg("ignored error listing instances, treating project as empty")
			return []VMInstance{}, nil
		}
		return nil, fmt.Errorf("%w: listing instances in %s: %w", ErrRemoteInventory, projectID, err)
	}

	instances := make([]VMInstance, 0, len(raw))
	for _, r := range raw {
		instances = append(instances, newVMInstance(projectID, r))
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

// AllInstances returns the instances of every project, ordered by project
// then name. Projects whose instance list is already cached cause no remote
// call.
func (l *Loader) AllInstances(ctx context.Context, tx *cache.Tx, force bool) ([]VMInstance, error) {
	projects, err := l.Projects(ctx, tx, false)
	if err != nil {
		return nil, err
	}

	var all []VMInstance
	for _, p := range projects {
		instances, instErr := l.Instances(ctx, tx, force, p.ID)
		if instErr != nil {
			return nil, instErr
		}
		all = append(all, instances...)
	}
	return all, nil
}
