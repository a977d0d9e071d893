package functions

import "time"

// Notification is the snake_case row returned by the notifications function.
type Notification struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	ImageURL     string         `json:"image_url,omitempty"`
	ActionURL    string         `json:"action_url,omitempty"`
	IsBroadcast  bool           `json:"is_broadcast"`
	TargetUserID *string        `json:"target_user_id"`
	ProductID    *string        `json:"product_id,omitempty"`
	DealID       *string        `json:"deal_id,omitempty"`
	AutomationID *string        `json:"automation_id,omitempty"`
	CampaignID   *string        `json:"campaign_id,omitempty"`
	CreatedBy    *string        `json:"created_by,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IsRead       bool           `json:"is_read"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Stats summarises notifications visible to a user.
type Stats struct {
	Total     int            `json:"total"`
	Unread    int            `json:"unread"`
	Read      int            `json:"read"`
	Broadcast int            `json:"broadcast"`
	ByType    map[string]int `json:"by_type"`
}

// DayCount is the number of notifications created on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// CampaignSummary aggregates campaign progress.
type CampaignSummary struct {
	Total     int `json:"total"`
	Scheduled int `json:"scheduled"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	SentTotal int `json:"sent_total"`
}

// Analytics is the admin dashboard summary.
type Analytics struct {
	Total     int             `json:"total"`
	ReadRate  float64         `json:"read_rate"`
	ByType    map[string]int  `json:"by_type"`
	ByDay     []DayCount      `json:"by_day"`
	Campaigns CampaignSummary `json:"campaigns"`
}

// Bulk operations accepted by the bulk function.
const (
	BulkMarkRead   = "mark_read"
	BulkMarkUnread = "mark_unread"
	BulkDelete     = "delete"
)

// BulkRequest applies Operation to every id.
type BulkRequest struct {
	IDs       []string `json:"ids" validate:"required,min=1"`
	Operation string   `json:"operation" validate:"required,oneof=mark_read mark_unread delete"`
}

// BulkResult reports how many rows changed.
type BulkResult struct {
	Affected int `json:"affected"`
}

// ScheduleRequest creates a notification now or, when ScheduledAt is in the future, a
// scheduled campaign that the dispatcher sends later.
type ScheduleRequest struct {
	Type         string     `json:"type" validate:"required"`
	Title        string     `json:"title" validate:"required"`
	Message      string     `json:"message" validate:"required"`
	ImageURL     string     `json:"image_url,omitempty"`
	ActionURL    string     `json:"action_url,omitempty"`
	TargetUserID string     `json:"target_user_id,omitempty"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// ScheduleResult identifies what was created.
type ScheduleResult struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// Schedule result kinds.
const (
	KindNotification = "notification"
	KindCampaign     = "campaign"
)

// SegmentFilters narrows the user population. Zero values are ignored.
type SegmentFilters struct {
	Role             string   `json:"role,omitempty"`
	ActiveOnly       bool     `json:"active_only,omitempty"`
	MinOrders        int      `json:"min_orders,omitempty"`
	MaxOrders        *int     `json:"max_orders,omitempty"`
	InactiveDays     int      `json:"inactive_days,omitempty"`
	RegisteredWithin int      `json:"registered_within_days,omitempty"`
	UserIDs          []string `json:"user_ids,omitempty"`
}

// SegmentRequest wraps the filters.
type SegmentRequest struct {
	Filters SegmentFilters `json:"filters"`
}

// SegmentResult lists matching users.
type SegmentResult struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}

// Variant is one arm of an A/B test.
type Variant struct {
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// ABTestRequest splits UserIDs between two message variants.
type ABTestRequest struct {
	Name     string   `json:"name" validate:"required"`
	Type     string   `json:"type,omitempty"`
	UserIDs  []string `json:"user_ids" validate:"required,min=1"`
	VariantA Variant  `json:"variant_a" validate:"required"`
	VariantB Variant  `json:"variant_b" validate:"required"`
}

// ABTestResult records the assignment of users to variants.
type ABTestResult struct {
	Name     string   `json:"name"`
	VariantA []string `json:"variant_a"`
	VariantB []string `json:"variant_b"`
	Created  int      `json:"created"`
}
