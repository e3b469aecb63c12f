package models

import "time"

type EventType string

const (
	EventPostCreated EventType = "post_created"
	EventPostDeleted EventType = "post_deleted"
	EventPinsExpired EventType = "pins_expired"
)

// BoardEvent tells live clients that the board changed and should be re-read.
type BoardEvent struct {
	Type    EventType `json:"type"`
	PostIds []PostID  `json:"postIds"`
	At      time.Time `json:"at"`
}
