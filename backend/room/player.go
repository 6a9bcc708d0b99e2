package room

import (
	"time"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

// Player is one controller connection inside a room. Values handed out by
// Room are copies; the room keeps the only mutable instance.
type Player struct {
	ConnectionID          string
	DisplayName           string
	PlayerNumber          int
	IsHost                bool
	SelectedCar           string
	CarSelected           bool
	Input                 model.InputState
	Position              model.Vec3
	Rotation              model.Vec3
	Velocity              model.Vec3
	Ready                 bool
	LastInputSequence     uint64
	LastAcknowledgedState uint64
	LatencyMs             float64
	ConnectionQuality     string
	ConnectedAt           time.Time
}

func (p *Player) Snapshot() model.PlayerSnapshot {
	return model.PlayerSnapshot{
		PlayerNumber:      p.PlayerNumber,
		DisplayName:       p.DisplayName,
		IsHost:            p.IsHost,
		SelectedCar:       p.SelectedCar,
		CarSelected:       p.CarSelected,
		Ready:             p.Ready,
		Input:             p.Input,
		Position:          p.Position,
		Rotation:          p.Rotation,
		Velocity:          p.Velocity,
		LastInputSequence: p.LastInputSequence,
		LatencyMs:         p.LatencyMs,
		ConnectionQuality: p.ConnectionQuality,
		ConnectedAt:       p.ConnectedAt,
	}
}
