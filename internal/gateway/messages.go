package gateway

import "encoding/json"

// ClientMessage is the envelope for everything a client sends over the socket.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client message types.
const (
	MessageTypeAuthenticate = "authenticate"
	MessageTypeTyping       = "typing"
	MessageTypeRaceComplete = "raceComplete"
	MessageTypeChangeColor  = "changeColor"
)

// AuthenticateData opens a session. Must be the first message on a connection.
type AuthenticateData struct {
	Username string `json:"username"`
}

// TypingData is a progress delta from the client's input handling.
type TypingData struct {
	CurrentWord string  `json:"currentWord"`
	IsTyping    bool    `json:"isTyping"`
	Progress    float64 `json:"progress"`
}

// RaceCompleteData carries the client-measured speed and accuracy at finish.
type RaceCompleteData struct {
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

// ChangeColorData requests a car color change.
type ChangeColorData struct {
	Color string `json:"color"`
}
