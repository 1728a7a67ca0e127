// Package inventorytest provides an in-memory inventory.Source for tests.
package inventorytest

import (
	"context"
	"sync"

	"github.com/minimum2scp/geco/internal/inventory"
)

// Source is a programmable inventory.Source that counts calls.
type Source struct {
	Projects    []inventory.RawProject
	ProjectsErr error

	Instances    map[string][]inventory.RawInstance
	InstanceErrs map[string]error

	mu            sync.Mutex
	projectCalls  int
	instanceCalls map[string]int
}

// NewSource returns an empty Source.
func NewSource() *Source {
	return &Source{
		Instances:     make(map[string][]inventory.RawInstance),
		InstanceErrs:  make(map[string]error),
		instanceCalls: make(map[string]int),
	}
}

// AddProject registers a project and its instances.
func (s *Source) AddProject(id, name string, number int64, instances ...inventory.RawInstance) *Source {
	s.Projects = append(s.Projects, inventory.RawProject{ProjectID: id, Name: name, ProjectNumber: number})
	s.Instances[id] = instances
	return s
}

// ListProjects implements inventory.Source.
func (s *Source) ListProjects(_ context.Context) ([]inventory.RawProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectCalls++
	if s.ProjectsErr != nil {
		return nil, s.ProjectsErr
	}
	return append([]inventory.RawProject(nil), s.Projects...), nil
}

// ListInstances implements inventory.Source.
func (s *Source) ListInstances(_ context.Context, projectID string) ([]inventory.RawInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instanceCalls[projectID]++
	if err := s.InstanceErrs[projectID]; err != nil {
		return nil, err
	}
	return append([]inventory.RawInstance(nil), s.Instances[projectID]...), nil
}

// ProjectCalls returns how many times ListProjects ran.
func (s *Source) ProjectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectCalls
}

// InstanceCalls returns how many times ListInstances ran for projectID.
func (s *Source) InstanceCalls(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceCalls[projectID]
}

// TotalInstanceCalls returns how many times ListInstances ran overall.
func (s *Source) TotalInstanceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.instanceCalls {
		total += n
	}
	return total
}

// Instance builds a RawInstance in the shape the Compute API returns.
func Instance(projectID, zone, name, internalIP, externalIP string) inventory.RawInstance {
	raw := inventory.RawInstance{
		Name:        name,
		Zone:        "https://www.googleapis.com/compute/v1/projects/" + projectID + "/zones/" + zone,
		MachineType: "https://www.googleapis.com/compute/v1/projects/" + projectID + "/zones/" + zone + "/machineTypes/e2-small",
		Status:      "RUNNING",
		NetworkInterfaces: []inventory.RawNetworkInterface{
			{InternalIP: internalIP},
		},
	}
	if externalIP != "" {
		raw.NetworkInterfaces[0].AccessConfigs = []inventory.RawAccessConfig{{ExternalIP: externalIP}}
	}
	return raw
}
