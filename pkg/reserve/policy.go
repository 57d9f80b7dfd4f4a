package reserve

// Floors applied when a node's configured base reservation leaves too
// little memory for guests.
const (
	// ComputeMinMB is the node 0 floor on any host.
	ComputeMinMB int64 = 1600
	// ControllerMinMB is added to the node 0 floor on controller hosts.
	ControllerMinMB int64 = 6000
	// ComputeMinNon0MB is the floor for every node but node 0.
	ComputeMinNon0MB int64 = 500
	// ClipThresholdMB is the minimum guest memory left after the configured
	// reservation below which the floors replace it.
	ClipThresholdMB int64 = 1000
)

// Policy clips per-node base memory reservations on small hosts.
type Policy struct {
	ComputeMinMB     int64
	ControllerMinMB  int64
	ComputeMinNon0MB int64
	ClipThresholdMB  int64
}

// DefaultPolicy returns the policy built from the package constants.
func DefaultPolicy() Policy {
	return Policy{
		ComputeMinMB:     ComputeMinMB,
		ControllerMinMB:  ControllerMinMB,
		ComputeMinNon0MB: ComputeMinNon0MB,
		ClipThresholdMB:  ClipThresholdMB,
	}
}

// IsZero reports whether p is the unset Policy.
func (p Policy) IsZero() bool {
	return p == Policy{}
}

// BaseReservedMB returns the base reservation for node given its total
// memory and the configured reservation. When less than ClipThresholdMB
// would remain, node 0 gets the compute floor (plus the controller floor on
// controllers) and other nodes get the secondary floor.
func (p Policy) BaseReservedMB(node int, totalKB, configuredMB int64, controller bool) int64 {
	if totalKB/1024-configuredMB >= p.ClipThresholdMB {
		return configuredMB
	}
	if node != 0 {
		return p.ComputeMinNon0MB
	}
	base := p.ComputeMinMB
	if controller {
		base += p.ControllerMinMB
	}
	return base
}
