package gcloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/logging"
)

// activeProjectsFilter matches what `gcloud projects list` shows by default.
const activeProjectsFilter = "lifecycleState:ACTIVE"

const userAgent = "geco"

// APISource lists inventory through the Google Cloud REST APIs. The API
// clients are created on first use, so commands served entirely from the
// cache never need credentials.
type APISource struct {
	options []option.ClientOption

	once     sync.Once
	initErr  error
	projects *cloudresourcemanager.Service
	compute  *compute.Service
}

var _ inventory.Source = (*APISource)(nil)

// NewAPISource creates an APISource. Without options the clients
// authenticate with Application Default Credentials.
func NewAPISource(opts ...option.ClientOption) *APISource {
	return &APISource{options: opts}
}

func (s *APISource) init(ctx context.Context) error {
	s.once.Do(func() {
		// The clients outlive the first caller's context.
		ctx = context.WithoutCancel(ctx)

		opts := s.options
		if len(opts) == 0 {
			creds, err := google.FindDefaultCredentials(ctx,
				cloudresourcemanager.CloudPlatformReadOnlyScope,
				compute.ComputeReadonlyScope,
			)
			if err != nil {
				s.initErr = fmt.Errorf("finding default credentials: %w", err)
				return
			}
			opts = []option.ClientOption{option.WithCredentials(creds), option.WithUserAgent(userAgent)}
		}

		if s.projects, s.initErr = cloudresourcemanager.NewService(ctx, opts...); s.initErr != nil {
			s.initErr = fmt.Errorf("creating resource manager client: %w", s.initErr)
			return
		}
		if s.compute, s.initErr = compute.NewService(ctx, opts...); s.initErr != nil {
			s.initErr = fmt.Errorf("creating compute client: %w", s.initErr)
		}
	})
	return s.initErr
}

// ListProjects implements inventory.Source.
func (s *APISource) ListProjects(ctx context.Context) ([]inventory.RawProject, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	var out []inventory.RawProject
	err := s.projects.Projects.List().Filter(activeProjectsFilter).Pages(ctx,
		func(page *cloudresourcemanager.ListProjectsResponse) error {
			for _, p := range page.Projects {
				out = append(out, inventory.RawProject{
					ProjectID:     p.ProjectId,
					Name:          p.Name,
					ProjectNumber: p.ProjectNumber,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	logging.FromContext(ctx).Debug().
		Str("component", "gcloud").
		Int("projects", len(out)).
		Msg("listed projects")
	return out, nil
}

// ListInstances implements inventory.Source. Client errors such as a
// disabled Compute API or missing permissions are reported as
// inventory.ErrPermission.
func (s *APISource) ListInstances(ctx context.Context, projectID string) ([]inventory.RawInstance, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	var out []inventory.RawInstance
	err := s.compute.Instances.AggregatedList(projectID).Pages(ctx,
		func(page *compute.InstanceAggregatedList) error {
			for _, scoped := range page.Items {
				for _, inst := range scoped.Instances {
					out = append(out, rawInstance(inst))
				}
			}
			return nil
		})
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: listing instances of %s: %w", inventory.ErrPermission, projectID, err)
		}
		return nil, fmt.Errorf("listing instances of %s: %w", projectID, err)
	}

	logging.FromContext(ctx).Debug().
		Str("component", "gcloud").
		Str("project", projectID).
		Int("instances", len(out)).
		Msg("listed instances")
	return out, nil
}

func rawInstance(inst *compute.Instance) inventory.RawInstance {
	raw := inventory.RawInstance{
		Name:        inst.Name,
		Zone:        inst.Zone,
		MachineType: inst.MachineType,
		Status:      inst.Status,
	}
	for _, nic := range inst.NetworkInterfaces {
		rn := inventory.RawNetworkInterface{InternalIP: nic.NetworkIP}
		for _, ac := range nic.AccessConfigs {
			rn.AccessConfigs = append(rn.AccessConfigs, inventory.RawAccessConfig{ExternalIP: ac.NatIP})
		}
		raw.NetworkInterfaces = append(raw.NetworkInterfaces, rn)
	}
	return raw
}

// isClientError reports whether err is a 4xx caused by the project itself.
// Auth and quota failures are transient and must not be cached as an empty
// inventory.
func isClientError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return gerr.Code >= http.StatusBadRequest && gerr.Code < http.StatusInternalServerError
}
