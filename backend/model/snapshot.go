package model

import "time"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type InputState struct {
	Steering  float64 `json:"steering"`
	Brake     bool    `json:"brake"`
	Timestamp int64   `json:"timestamp"`
}

// PlayerSnapshot is the public projection of a player.
type PlayerSnapshot struct {
	PlayerNumber      int        `json:"playerNumber"`
	DisplayName       string     `json:"displayName"`
	IsHost            bool       `json:"isHost"`
	SelectedCar       string     `json:"selectedCar,omitempty"`
	CarSelected       bool       `json:"carSelected"`
	Ready             bool       `json:"ready"`
	Input             InputState `json:"input"`
	Position          Vec3       `json:"position"`
	Rotation          Vec3       `json:"rotation"`
	Velocity          Vec3       `json:"velocity"`
	LastInputSequence uint64     `json:"lastInputSequence"`
	LatencyMs         float64    `json:"latencyMs"`
	ConnectionQuality string     `json:"connectionQuality,omitempty"`
	ConnectedAt       time.Time  `json:"connectedAt"`
}

type RaceProgress struct {
	PlayerNumber      int    `json:"playerNumber"`
	CurrentLap        int    `json:"currentLap"`
	CheckpointsPassed []int  `json:"checkpointsPassed"`
	RacePosition      int    `json:"racePosition"`
	Finished          bool   `json:"finished"`
	FinishTime        *int64 `json:"finishTime"`
}

type RaceSnapshot struct {
	MaxLaps           int            `json:"maxLaps"`
	CheckpointsPerLap int            `json:"checkpointsPerLap"`
	Tick              uint64         `json:"tick"`
	RaceStartTime     *int64         `json:"raceStartTime"`
	RaceEndTime       *int64         `json:"raceEndTime"`
	Players           []RaceProgress `json:"players"`
}

// RoomSnapshot is the public projection of a room. Connection ids and the
// internal room id stay on the server.
type RoomSnapshot struct {
	RoomCode        string           `json:"roomCode"`
	Players         []PlayerSnapshot `json:"players"`
	SelectedMap     string           `json:"selectedMap,omitempty"`
	GameMode        string           `json:"gameMode"`
	GameStarted     bool             `json:"gameStarted"`
	AllCarsSelected bool             `json:"allCarsSelected"`
	Race            RaceSnapshot     `json:"race"`
	CreatedAt       time.Time        `json:"createdAt"`
}
