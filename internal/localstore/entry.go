package localstore

import (
	"strings"
	"time"
)

// IDPrefix marks entries that only exist in local storage.
const IDPrefix = "local:"

// BroadcastTarget is the targetUserId value meaning "every user".
const BroadcastTarget = "all"

// Entry is one locally persisted notification. Field names follow the camelCase
// shape used by storefront clients.
type Entry struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	IsNew        bool      `json:"isNew"`
	IsRead       bool      `json:"isRead"`
	TargetUserID string    `json:"targetUserId,omitempty"`
	ActionURL    string    `json:"actionUrl,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	ProductID    string    `json:"productId,omitempty"`
	DealID       string    `json:"dealId,omitempty"`
	IsBroadcast  bool      `json:"isBroadcast"`
	CreatedBy    string    `json:"createdBy,omitempty"`
}

// IsLocalID reports whether id was minted by the local store.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

// VisibleTo reports whether the entry should be listed for userID. Entries without
// a target or targeted at "all" are visible to everyone.
func (e Entry) VisibleTo(userID string) bool {
	return e.TargetUserID == "" || e.TargetUserID == BroadcastTarget || e.TargetUserID == userID
}

// OwnedBy reports whether the entry is targeted at owner. Broadcast entries belong to
// nobody; an empty owner matches everything.
func (e Entry) OwnedBy(owner string) bool {
	return owner == "" || e.TargetUserID == owner
}

// Patch lists the mutable fields of an entry; nil fields are left untouched.
type Patch struct {
	Type      *string `json:"type,omitempty"`
	Title     *string `json:"title,omitempty"`
	Message   *string `json:"message,omitempty"`
	IsNew     *bool   `json:"isNew,omitempty"`
	IsRead    *bool   `json:"isRead,omitempty"`
	ActionURL *string `json:"actionUrl,omitempty"`
	ImageURL  *string `json:"imageUrl,omitempty"`
}

func (p Patch) apply(e *Entry) {
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Message != nil {
		e.Message = *p.Message
	}
	if p.IsNew != nil {
		e.IsNew = *p.IsNew
	}
	if p.IsRead != nil {
		e.IsRead = *p.IsRead
	}
	if p.ActionURL != nil {
		e.ActionURL = *p.ActionURL
	}
	if p.ImageURL != nil {
		e.ImageURL = *p.ImageURL
	}
}

// Stats summarises the stored entries.
type Stats struct {
	Total     int            `json:"total"`
	Unread    int            `json:"unread"`
	Read      int            `json:"read"`
	Broadcast int            `json:"broadcast"`
	ByType    map[string]int `json:"byType"`
}
