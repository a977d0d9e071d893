package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bitebell/internal/authctx"
	"github.com/charlesng35/bitebell/internal/models"
)

func TestTriggerRendersInlineDataForBroadcastRule(t *testing.T) {
	s := newTestServices(t)

	rule, err := s.automations.Create(t.Context(), AutomationInput{
		Name:           "Confirmed",
		TriggerType:    models.TriggerOrderConfirmed,
		TargetAudience: models.AudienceAll,
		NotificationData: models.NotificationContent{
			Title:   "Order {{orderNumber}} confirmed",
			Message: "Ready in {{estimatedTime}}",
		},
	})
	require.NoError(t, err)

	res := s.engine.Trigger(t.Context(), models.TriggerOrderConfirmed, TriggerContext{
		OrderNumber:   "A-17",
		EstimatedTime: "30 minutes",
	}, "")

	require.False(t, res.UsedFallback)
	require.Equal(t, 1, res.Matched)
	require.Len(t, res.NotificationIDs, 1)
	require.Equal(t, OutcomeCreated, res.Rules[0].Outcome)

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Order A-17 confirmed", rows[0].Title)
	require.Equal(t, "Ready in 30 minutes", rows[0].Message)
	require.True(t, rows[0].IsBroadcast)
	require.Nil(t, rows[0].TargetUserID)
	require.Equal(t, models.NotificationTypeOrder, rows[0].Type)
	require.Equal(t, rule.ID, *rows[0].AutomationID)
	require.Equal(t, 1, s.emitter.Count())
}

func TestTriggerWithoutRulesUsesBuiltInMessage(t *testing.T) {
	s := newTestServices(t)

	res := s.engine.Trigger(t.Context(), models.TriggerOrderReady, TriggerContext{}, "user-9")
	require.True(t, res.UsedFallback)
	require.Len(t, res.NotificationIDs, 1)

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Order Ready!", rows[0].Title)
	require.Equal(t, "Your order is ready for pickup.", rows[0].Message)
	require.False(t, rows[0].IsBroadcast)
	require.Equal(t, "user-9", *rows[0].TargetUserID)
	require.Equal(t, 1, s.emitter.Count())
}

func TestTriggerFallbackTargetsAuthenticatedUserOrEveryone(t *testing.T) {
	s := newTestServices(t)

	ctx := authctx.WithPrincipal(t.Context(), authctx.Principal{UserID: "user-3", Role: "customer"})
	s.engine.Trigger(ctx, models.TriggerOrderPlaced, TriggerContext{}, "")
	s.engine.Trigger(t.Context(), models.TriggerLowStock, TriggerContext{}, "")

	rows := s.allNotifications(t)
	require.Len(t, rows, 2)

	byTitle := map[string]models.Notification{}
	for _, row := range rows {
		byTitle[row.Title] = row
	}
	placed := byTitle["Order Placed"]
	require.Equal(t, "user-3", *placed.TargetUserID)
	require.False(t, placed.IsBroadcast)

	generic := byTitle[GenericTitle]
	require.True(t, generic.IsBroadcast)
	require.Nil(t, generic.TargetUserID)
	require.Equal(t, models.NotificationTypeSystem, generic.Type)
}

func TestTriggerSkipsRulesWhoseConditionsFail(t *testing.T) {
	s := newTestServices(t)

	_, err := s.automations.Create(t.Context(), AutomationInput{
		Name:             "Big orders",
		TriggerType:      models.TriggerOrderDelivered,
		Conditions:       map[string]any{"total": 100},
		NotificationData: models.NotificationContent{Title: "Thanks for the big order", Message: "Enjoy"},
	})
	require.NoError(t, err)

	small := 20.0
	res := s.engine.Trigger(t.Context(), models.TriggerOrderDelivered, TriggerContext{Total: &small}, "user-1")
	require.False(t, res.UsedFallback)
	require.Equal(t, OutcomeSkipped, res.Rules[0].Outcome)
	require.Empty(t, res.NotificationIDs)
	require.Empty(t, s.allNotifications(t))
	require.Zero(t, s.emitter.Count())

	big := 100.0
	res = s.engine.Trigger(t.Context(), models.TriggerOrderDelivered, TriggerContext{Total: &big}, "user-1")
	require.Equal(t, OutcomeCreated, res.Rules[0].Outcome)
	require.Len(t, s.allNotifications(t), 1)
}

func TestTriggerPrefersStoredTemplate(t *testing.T) {
	s := newTestServices(t)

	tmpl, err := s.templates.Create(t.Context(), TemplateInput{
		Name:            "Deal",
		Type:            models.NotificationTypePromo,
		TitleTemplate:   "{{dealName}} is live",
		MessageTemplate: "Save {{discount}}%",
		ActionURL:       "/deals/{{dealId}}",
	})
	require.NoError(t, err)
	_, err = s.automations.Create(t.Context(), AutomationInput{
		Name:             "Deals",
		TriggerType:      models.TriggerNewDeal,
		TemplateID:       &tmpl.ID,
		NotificationData: models.NotificationContent{Title: "ignored", Message: "ignored"},
	})
	require.NoError(t, err)

	s.engine.Trigger(t.Context(), models.TriggerNewDeal, TriggerContext{DealID: "d-1", DealName: "Taco Tuesday", Discount: "15"}, "")

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Taco Tuesday is live", rows[0].Title)
	require.Equal(t, "Save 15%", rows[0].Message)
	require.Equal(t, "/deals/d-1", rows[0].ActionURL)
	require.Equal(t, "d-1", *rows[0].DealID)
	require.Equal(t, models.NotificationTypePromo, rows[0].Type)
}

func TestTriggerFillsMissingContentWithDefaults(t *testing.T) {
	s := newTestServices(t)

	_, err := s.automations.Create(t.Context(), AutomationInput{
		Name:        "Empty",
		TriggerType: models.TriggerOrderCancelled,
	})
	require.NoError(t, err)

	s.engine.Trigger(t.Context(), models.TriggerOrderCancelled, TriggerContext{}, "user-2")

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Order Cancelled", rows[0].Title)
	require.Equal(t, "Your order has been cancelled.", rows[0].Message)
}

func TestTriggerScopesByAudience(t *testing.T) {
	s := newTestServices(t)

	for _, audience := range []models.Audience{models.AudienceUser, models.AudienceAdmin} {
		_, err := s.automations.Create(t.Context(), AutomationInput{
			Name:             string(audience),
			TriggerType:      models.TriggerNewProduct,
			TargetAudience:   audience,
			NotificationData: models.NotificationContent{Title: "New {{productName}}", Message: string(audience)},
		})
		require.NoError(t, err)
	}

	s.engine.Trigger(t.Context(), models.TriggerNewProduct, TriggerContext{ProductName: "Ramen"}, "")

	rows := s.allNotifications(t)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.False(t, row.IsBroadcast)
		require.Nil(t, row.TargetUserID)
		require.Equal(t, row.Message, row.Metadata["audience"])
	}

	s.engine.Trigger(t.Context(), models.TriggerNewProduct, TriggerContext{ProductName: "Ramen"}, "user-5")
	var targeted int64
	require.NoError(t, s.db.Model(&models.Notification{}).Where("target_user_id = ?", "user-5").Count(&targeted).Error)
	require.EqualValues(t, 2, targeted)
}

func TestTriggerIgnoresInactiveRules(t *testing.T) {
	s := newTestServices(t)

	_, err := s.automations.Create(t.Context(), AutomationInput{
		Name:             "off",
		TriggerType:      models.TriggerOrderPreparing,
		IsActive:         ptr(false),
		NotificationData: models.NotificationContent{Title: "never", Message: "never"},
	})
	require.NoError(t, err)

	res := s.engine.Trigger(t.Context(), models.TriggerOrderPreparing, TriggerContext{}, "user-1")
	require.True(t, res.UsedFallback)

	rows := s.allNotifications(t)
	require.Len(t, rows, 1)
	require.Equal(t, "Preparing Your Order", rows[0].Title)
}

func TestTriggerSurvivesStoreFailure(t *testing.T) {
	s := newTestServices(t)

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res := s.engine.Trigger(t.Context(), models.TriggerOrderPlaced, TriggerContext{}, "user-1")
	require.False(t, res.UsedFallback)
	require.Empty(t, res.NotificationIDs)
	require.Zero(t, s.emitter.Count())
}
