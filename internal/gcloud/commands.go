package gcloud

import (
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/shell"
)

// SSHCommand builds `gcloud compute ssh` for an instance.
func SSHCommand(binary string, inst inventory.VMInstance) shell.Command {
	return shell.NewCommand(binaryOrDefault(binary),
		"compute", "ssh",
		"--project="+inst.Project,
		"--zone="+inst.Zone,
		inst.Name,
	)
}

// SetProjectCommand builds `gcloud config set project` for a project.
func SetProjectCommand(binary string, p inventory.Project) shell.Command {
	return shell.NewCommand(binaryOrDefault(binary), "config", "set", "project", p.ID)
}

func binaryOrDefault(binary string) string {
	if binary == "" {
		return DefaultBinary
	}
	return binary
}
