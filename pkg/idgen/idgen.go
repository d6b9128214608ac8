// Package idgen generates storage identifiers and git sync identifiers.
//
// Identifiers are unique but not secret. Storage ids are 24-character hex
// ObjectIDs, ordered roughly by creation time.
package idgen

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh collision-resistant storage id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// NewGitSyncID builds a sync id of the shape <ownerID>_<freshID>.
func NewGitSyncID(ownerID string) string {
	return ownerID + "_" + NewID()
}

// IsID reports whether s looks like an id produced by NewID.
func IsID(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}
