package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"notification", func() *BaseModel { n := &Notification{}; return &n.BaseModel }},
		{"template", func() *BaseModel { m := &NotificationTemplate{}; return &m.BaseModel }},
		{"automation", func() *BaseModel { m := &NotificationAutomation{}; return &m.BaseModel }},
		{"campaign", func() *BaseModel { m := &NotificationCampaign{}; return &m.BaseModel }},
		{"user", func() *BaseModel { u := &User{}; return &u.BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			require.NoError(t, model.BeforeCreate(nil))
			require.NotEmpty(t, model.ID)
		})
	}
}

func TestTriggerTypes(t *testing.T) {
	require.Len(t, TriggerTypes, 13)
	require.True(t, TriggerOrderOutForDelivery.Valid())
	require.False(t, TriggerType("order_lost").Valid())

	orderTriggers := 0
	for _, trigger := range TriggerTypes {
		if trigger.IsOrderLifecycle() {
			orderTriggers++
		}
	}
	require.Equal(t, 7, orderTriggers)
}

func TestEnumValidity(t *testing.T) {
	require.True(t, NotificationTypeMarketing.Valid())
	require.False(t, NotificationType("sms").Valid())
	require.True(t, AudienceSegment.Valid())
	require.False(t, Audience("everyone").Valid())
}
