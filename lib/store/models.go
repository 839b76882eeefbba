package store

import "time"

// Entry is the document saved by media that keep metadata next to the value (ie. MongoDB).
type Entry struct {
	Key     string    `json:"key" bson:"_id"`
	Value   []byte    `json:"value" bson:"value"`
	Updated time.Time `json:"updated" bson:"updated"`
}
