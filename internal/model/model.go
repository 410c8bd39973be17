// Package model defines core domain types shared across the service.
package model

import "time"

// Host identifies the user that created an event.
type Host struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	ImgURL string `json:"imgUrl"`
}

// Event is the summary stored in cached grid entries and returned by
// listing queries. Coordinates are EPSG:4326 degrees. GridID is derived
// from the coordinates at write time and stored alongside the event so
// grid queries can use it as an index.
type Event struct {
	ID              string    `json:"eventId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	MaxParticipants int       `json:"maxParticipants"`
	CreationTime    time.Time `json:"creationTime"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	ChatroomID      int64     `json:"chatroomId"`
	IsPublic        bool      `json:"isPublic"`
	Host            Host      `json:"host"`
	Participants    int       `json:"participants"`
	Categories      []string  `json:"categories"`
	GridID          string    `json:"gridId"`
}

// HasAnyCategory reports whether the event's category set intersects
// wanted. An empty wanted set matches every event.
func (e Event) HasAnyCategory(wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, c := range e.Categories {
			if c == w {
				return true
			}
		}
	}
	return false
}

// BBox is a south-west / north-east bounding box in EPSG:4326 degrees.
type BBox struct {
	SWLat float64
	SWLng float64
	NELat float64
	NELng float64
}
