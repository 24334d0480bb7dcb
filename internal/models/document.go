package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Document is one keyed value in the remote document store.
type Document struct {
	// Key is the full slash-separated path of the document.
	Key string

	// Value holds JSON-compatible fields: strings, float64 numbers,
	// booleans, nested maps and slices.
	Value map[string]any

	// UpdatedAt is the Unix millisecond time the store last wrote the key.
	UpdatedAt int64
}

// UserKey returns the key of a user's root document.
func UserKey(userID string) string {
	return "users/" + userID
}

// ConnectionsPrefix returns the key prefix of a user's connection documents.
func ConnectionsPrefix(userID string) string {
	return UserKey(userID) + "/connections/"
}

// ConnectionKey returns the key of one connection document.
func ConnectionKey(userID string, id int64) string {
	return ConnectionsPrefix(userID) + strconv.FormatInt(id, 10)
}

// KeyInPartition reports whether key belongs to the user's partition.
func KeyInPartition(key, userID string) bool {
	root := UserKey(userID)
	return key == root || strings.HasPrefix(key, root+"/")
}

// ConnectionDocument encodes a connection as a remote document value.
// The ID lives in the key, not the body.
func ConnectionDocument(c Connection, bottleWeight float64) map[string]any {
	return map[string]any{
		"date":         c.Date,
		"cost":         c.Cost,
		"timestamp":    c.Timestamp,
		"bottleWeight": bottleWeight,
	}
}

// ConnectionFromDocument decodes a connection document. The ID is taken
// from the last path segment of the key.
func ConnectionFromDocument(doc Document) (Connection, error) {
	idx := strings.LastIndex(doc.Key, "/")
	id, err := strconv.ParseInt(doc.Key[idx+1:], 10, 64)
	if err != nil {
		return Connection{}, fmt.Errorf("bad connection key %q: %w", doc.Key, err)
	}

	c := Connection{ID: id}
	c.Date, _ = doc.Value["date"].(string)
	c.Timestamp, _ = doc.Value["timestamp"].(string)
	cost, ok := doc.Value["cost"].(float64)
	if !ok {
		return Connection{}, fmt.Errorf("connection %q has no numeric cost", doc.Key)
	}
	c.Cost = cost

	if err := c.Validate(); err != nil {
		return Connection{}, fmt.Errorf("connection %q: %w", doc.Key, err)
	}
	return c, nil
}

// UserDocument encodes the root user document.
func UserDocument(s Settings, lastUpdated int64, totalConnections int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"bottleWeight": s.BottleWeight,
			"bottlePrice":  s.BottlePrice,
		},
		"lastUpdated":      float64(lastUpdated),
		"totalConnections": float64(totalConnections),
	}
}

// SettingsPatchFromDocument extracts whichever settings fields the user
// document carries.
func SettingsPatchFromDocument(value map[string]any) SettingsPatch {
	var p SettingsPatch
	raw, ok := value["settings"].(map[string]any)
	if !ok {
		return p
	}
	if w, ok := raw["bottleWeight"].(float64); ok {
		p.BottleWeight = &w
	}
	if price, ok := raw["bottlePrice"].(float64); ok {
		p.BottlePrice = &price
	}
	return p
}

// LastUpdatedFromDocument returns the lastUpdated field of a user document, or 0.
func LastUpdatedFromDocument(value map[string]any) int64 {
	v, _ := value["lastUpdated"].(float64)
	return int64(v)
}
