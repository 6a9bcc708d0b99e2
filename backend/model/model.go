package model

import "encoding/json"

// Inbound message types.
const (
	TypeCreateRoom               = "createRoom"
	TypeJoinRoom                 = "joinRoom"
	TypeGetRoomState             = "getRoomState"
	TypeStartGame                = "startGame"
	TypeControllerInput          = "controllerInput"
	TypeControllerInputSequenced = "controllerInputSequenced"
	TypeSelectCar                = "selectCar"
	TypeSelectMap                = "selectMap"
	TypeSelectGameMode           = "selectGameMode"
	TypePlayerReady              = "playerReady"
	TypeGameStateUpdate          = "gameStateUpdate"
	TypeStateAcknowledged        = "stateAcknowledged"
	TypePing                     = "ping"
	TypeLatencyReply             = "latencyReply"
	TypeAck                      = "ack"
)

// Outbound event types, sent by server to room members.
const (
	EventPlayerJoined         = "playerJoined"
	EventPlayerLeft           = "playerLeft"
	EventCarSelected          = "carSelected"
	EventMapSelected          = "mapSelected"
	EventGameModeSelected     = "gameModeSelected"
	EventPlayerReady          = "playerReady"
	EventGameStarting         = "gameStarting"
	EventGameState            = "gameState"
	EventPlayerInput          = "playerInput"
	EventPlayerInputSequenced = "playerInputSequenced"
	EventInputRejected        = "inputRejected"
	EventRaceFinished         = "raceFinished"
	EventRoomClosed           = "roomClosed"
	EventLatencyProbe         = "latencyProbe"
	EventFrameError           = "frameError"
)

// Envelope is the single frame format on the wire.
// Requests carrying a non-zero ID expect an ack frame with the same ID.
type Envelope struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Payload = b
	return env, nil
}

// Wire is the channel pair connecting a transport session to the protocol handler.
type Wire struct {
	RX chan Envelope
	TX chan Envelope
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Envelope),
		TX: make(chan Envelope, 64),
	}
}
