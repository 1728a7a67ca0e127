package inventory

import (
	"context"
	"errors"
)

// Inventory errors.
var (
	// ErrRemoteInventory wraps failures of the remote inventory calls.
	ErrRemoteInventory = errors.New("remote inventory call failed")

	// ErrPermission marks client-side failures (permission denied, API
	// disabled, project not found) of a Source. Instance listing degrades
	// these to an empty result.
	ErrPermission = errors.New("inventory access denied")
)

// Source retrieves raw inventory records from the cloud.
type Source interface {
	ListProjects(ctx context.Context) ([]RawProject, error)
	ListInstances(ctx context.Context, projectID string) ([]RawInstance, error)
}
