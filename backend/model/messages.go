package model

import "encoding/json"

// Request payloads. Validation tags are checked by the protocol handler.

type CreateRoomRequest struct{}

type CreateRoomResponse struct {
	RoomCode    string `json:"roomCode"`
	HostJoinURL string `json:"hostJoinUrl"`
}

type JoinRoomRequest struct {
	RoomCode    string `json:"roomCode"    validate:"required,len=6,number"`
	DisplayName string `json:"displayName" validate:"max=24"`
}

type JoinRoomResponse struct {
	RoomCode     string `json:"roomCode"`
	PlayerNumber int    `json:"playerNumber"`
	IsHost       bool   `json:"isHost"`
}

type RoomRequest struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,number"`
}

type ControllerInputRequest struct {
	RoomCode string          `json:"roomCode" validate:"required,len=6,number"`
	Input    json.RawMessage `json:"input"    validate:"required"`
	Sequence *uint64         `json:"sequence"`
}

type SelectCarRequest struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,number"`
	CarID    string `json:"carId"    validate:"required,max=64"`
}

type SelectValueRequest struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,number"`
	Value    string `json:"value"    validate:"required,max=64"`
}

type PlayerReadyRequest struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,number"`
	Ready    bool   `json:"ready"`
}

type GameStateUpdateRequest struct {
	RoomCode string          `json:"roomCode" validate:"required,len=6,number"`
	State    json.RawMessage `json:"state"`
}

// HostState is the part of the host's simulation state the server reads.
// Anything else in the state object is relayed untouched.
type HostState struct {
	Players     []PlayerTransform `json:"players"`
	Checkpoints []CheckpointEvent `json:"checkpoints"`
}

type PlayerTransform struct {
	PlayerNumber int   `json:"playerNumber"`
	Position     *Vec3 `json:"position"`
	Rotation     *Vec3 `json:"rotation"`
	Velocity     *Vec3 `json:"velocity"`
}

type CheckpointEvent struct {
	PlayerNumber int `json:"playerNumber"`
	CheckpointID int `json:"checkpointId"`
}

type StateAcknowledgedRequest struct {
	RoomCode     string `json:"roomCode"     validate:"required,len=6,number"`
	LastSequence uint64 `json:"lastSequence"`
}

type PingRequest struct {
	ClientTime int64 `json:"clientTime"`
}

type PingResponse struct {
	ClientTime int64 `json:"clientTime"`
	ServerTime int64 `json:"serverTime"`
}

type LatencyProbe struct {
	ServerTime int64 `json:"serverTime"`
}

// Event payloads.

type PlayerJoinedEvent struct {
	Player  PlayerSnapshot   `json:"player"`
	Players []PlayerSnapshot `json:"players"`
}

type PlayerLeftEvent struct {
	PlayerNumber int              `json:"playerNumber"`
	DisplayName  string           `json:"displayName"`
	Players      []PlayerSnapshot `json:"players"`
}

type CarSelectedEvent struct {
	PlayerNumber    int    `json:"playerNumber"`
	CarID           string `json:"carId"`
	AllCarsSelected bool   `json:"allCarsSelected"`
}

type MapSelectedEvent struct {
	MapID             string `json:"mapId"`
	MaxLaps           int    `json:"maxLaps"`
	CheckpointsPerLap int    `json:"checkpointsPerLap"`
}

type GameModeSelectedEvent struct {
	GameMode string `json:"gameMode"`
}

type PlayerReadyEvent struct {
	PlayerNumber int  `json:"playerNumber"`
	Ready        bool `json:"ready"`
}

type GameStartingEvent struct {
	Room RoomSnapshot `json:"room"`
}

type GameStateEvent struct {
	Tick  uint64          `json:"tick"`
	State json.RawMessage `json:"state,omitempty"`
	Race  RaceSnapshot    `json:"race"`
}

type PlayerInputEvent struct {
	PlayerNumber int        `json:"playerNumber"`
	Input        InputState `json:"input"`
	Sequence     uint64     `json:"sequence"`
	Valid        bool       `json:"valid"`
}

type InputRejectedEvent struct {
	Sequence uint64       `json:"sequence"`
	Errors   []FieldError `json:"errors"`
}

type RaceFinishedEvent struct {
	Race RaceSnapshot `json:"race"`
}

type RoomClosedEvent struct {
	Reason string `json:"reason"`
}

const (
	ReasonHostDisconnected = "Host disconnected"
	ReasonRoomExpired      = "Room expired"
)
