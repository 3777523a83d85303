package units

// NodeFlags packs the per-node boolean attributes stored alongside the
// allowed-transports mask in a compact Node record (spec.md section 3).
type NodeFlags uint16

const (
	// NodeSuper marks a node as a super-node in the two-level overlay.
	NodeSuper NodeFlags = 0x8000
	// NodeUTurn marks a node where a U-turn is explicitly permitted
	// (e.g. a dead end); the router does not read it.
	NodeUTurn NodeFlags = 0x4000
	// NodeMiniRoundabout marks a node as a mini-roundabout.
	NodeMiniRoundabout NodeFlags = 0x2000
	// NodeTurnRestricted marks a node as the via-node of a turn relation.
	NodeTurnRestricted NodeFlags = 0x1000
	// NodeTurnRestricted2 marks a node as an immediate neighbour of a
	// turn-restriction via-node; the router does not read it.
	NodeTurnRestricted2 NodeFlags = 0x0800
)
