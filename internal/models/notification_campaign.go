package models

import (
	"time"

	"gorm.io/datatypes"
)

// CampaignType is the marketing category of a campaign.
type CampaignType string

const (
	CampaignTypePromo        CampaignType = "promo"
	CampaignTypeAnnouncement CampaignType = "announcement"
	CampaignTypeReengagement CampaignType = "reengagement"
	CampaignTypeSeasonal     CampaignType = "seasonal"
	CampaignTypeSystem       CampaignType = "system"
)

// ScheduleType controls when a campaign is dispatched.
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
)

// CampaignStatus follows draft -> scheduled -> completed, draft -> active -> completed,
// or any state -> cancelled. A scheduled campaign whose sends keep failing ends as failed.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// NotificationCampaign is an admin authored broadcast that is sent now or at ScheduledAt.
type NotificationCampaign struct {
	BaseModel

	Name              string                                  `gorm:"type:varchar(255);not null" json:"name"`
	Description       string                                  `gorm:"type:text" json:"description"`
	Type              CampaignType                            `gorm:"type:varchar(32);default:'promo'" json:"type"`
	TargetAudience    Audience                                `gorm:"type:varchar(32);default:'all'" json:"target_audience"`
	AudienceSegment   datatypes.JSONMap                       `json:"audience_segment"`
	ScheduleType      ScheduleType                            `gorm:"type:varchar(32);default:'immediate'" json:"schedule_type"`
	ScheduledAt       *time.Time                              `gorm:"index:idx_campaign_due" json:"scheduled_at"`
	RecurrencePattern datatypes.JSONMap                       `json:"recurrence_pattern"`
	NotificationData  datatypes.JSONType[NotificationContent] `json:"notification_data"`
	Status            CampaignStatus                          `gorm:"type:varchar(32);default:'draft';index:idx_campaign_due" json:"status"`
	SentCount         int                                     `gorm:"default:0" json:"sent_count"`
	LastSentAt        *time.Time                              `json:"last_sent_at"`
	FailureCount      int                                     `gorm:"default:0" json:"failure_count"`
	LastError         string                                  `gorm:"type:text" json:"last_error,omitempty"`
	CreatedBy         *string                                 `gorm:"type:varchar(64)" json:"created_by"`
}
