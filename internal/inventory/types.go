// Package inventory loads GCP projects and VM instances through the
// memoizing cache, keeping an in-memory mirror for the current invocation.
package inventory

import (
	"strconv"
	"strings"
)

// Project is a GCP project as shown to the operator.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// VMInstance is a Compute Engine instance as shown to the operator.
type VMInstance struct {
	Project     string `json:"project"`
	Name        string `json:"name"`
	Zone        string `json:"zone"`
	MachineType string `json:"machine_type"`
	InternalIP  string `json:"internal_ip"`
	ExternalIP  string `json:"external_ip"`
	Status      string `json:"status"`
}

// RawProject is a project record as returned by a Source.
type RawProject struct {
	ProjectID     string
	Name          string
	ProjectNumber int64
}

// RawInstance is an instance record as returned by a Source. Zone and
// MachineType may be full resource URLs.
type RawInstance struct {
	Name              string
	Zone              string
	MachineType       string
	NetworkInterfaces []RawNetworkInterface
	Status            string
}

// RawNetworkInterface is one network interface of a RawInstance.
type RawNetworkInterface struct {
	InternalIP    string
	AccessConfigs []RawAccessConfig
}

// RawAccessConfig is an external access config of a network interface.
type RawAccessConfig struct {
	ExternalIP string
}

func newProject(raw RawProject) Project {
	number := ""
	if raw.ProjectNumber != 0 {
		number = strconv.FormatInt(raw.ProjectNumber, 10)
	}
	return Project{ID: raw.ProjectID, Name: raw.Name, Number: number}
}

func newVMInstance(projectID string, raw RawInstance) VMInstance {
	inst := VMInstance{
		Project:     projectID,
		Name:        raw.Name,
		Zone:        lastSegment(raw.Zone),
		MachineType: lastSegment(raw.MachineType),
		Status:      raw.Status,
	}
	if len(raw.NetworkInterfaces) > 0 {
		nic := raw.NetworkInterfaces[0]
		inst.InternalIP = nic.InternalIP
		if len(nic.AccessConfigs) > 0 {
			inst.ExternalIP = nic.AccessConfigs[0].ExternalIP
		}
	}
	return inst
}

// lastSegment reduces ".../zones/asia-northeast1-a" to "asia-northeast1-a".
func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
