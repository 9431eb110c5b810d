package firewall

import "context"

// Firewall applies and removes packet-level drops for single IPs.
// Implementations must be idempotent: applying a drop that already
// exists, or removing one that does not, is not an error.
type Firewall interface {
	// ApplyDrop installs a DROP rule for the IP
	ApplyDrop(ctx context.Context, ip string) error
	// RemoveDrop removes the DROP rule for the IP
	RemoveDrop(ctx context.Context, ip string) error
	// Name identifies the backend for logs
	Name() string
}
