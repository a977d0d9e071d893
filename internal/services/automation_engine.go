package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/internal/authctx"
	"github.com/charlesng35/bitebell/internal/models"
	"github.com/charlesng35/bitebell/internal/realtime"
	"github.com/charlesng35/bitebell/pkg/logger"
	"github.com/charlesng35/bitebell/pkg/metrics"
	"github.com/charlesng35/bitebell/pkg/templating"
)

// GenericTitle is the placeholder title used when a trigger has no built-in default.
const GenericTitle = "Order Update"

const genericMessage = "Your order status has been updated."

type defaultMessage struct {
	Title   string
	Message string
}

var triggerDefaults = map[models.TriggerType]defaultMessage{
	models.TriggerOrderPlaced:         {"Order Placed", "Your order has been placed successfully. We'll let you know once it's confirmed."},
	models.TriggerOrderConfirmed:      {"Order Confirmed!", "Your order has been confirmed and will be ready soon."},
	models.TriggerOrderPreparing:      {"Preparing Your Order", "Our kitchen is preparing your food."},
	models.TriggerOrderReady:          {"Order Ready!", "Your order is ready for pickup."},
	models.TriggerOrderOutForDelivery: {"Out for Delivery", "Your order is on its way!"},
	models.TriggerOrderDelivered:      {"Order Delivered", "Your order has been delivered. Enjoy your meal!"},
	models.TriggerOrderCancelled:      {"Order Cancelled", "Your order has been cancelled."},
}

// DefaultMessage returns the built-in title and message for a trigger.
func DefaultMessage(trigger models.TriggerType) (string, string) {
	if msg, ok := triggerDefaults[trigger]; ok {
		return msg.Title, msg.Message
	}
	return GenericTitle, genericMessage
}

// NotificationTypeFor maps a trigger onto the delivered notification type.
func NotificationTypeFor(trigger models.TriggerType) models.NotificationType {
	switch {
	case trigger.IsOrderLifecycle():
		return models.NotificationTypeOrder
	case trigger == models.TriggerNewProduct, trigger == models.TriggerNewDeal, trigger == models.TriggerDealExpiring:
		return models.NotificationTypePromo
	default:
		return models.NotificationTypeSystem
	}
}

// Rule outcomes recorded in TriggerResult and metrics.
const (
	OutcomeCreated  = "created"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeFallback = "fallback"
)

// RuleOutcome describes what happened to one automation during a firing.
type RuleOutcome struct {
	AutomationID   string `json:"automation_id"`
	Outcome        string `json:"outcome"`
	NotificationID string `json:"notification_id,omitempty"`
}

// TriggerResult summarises one firing.
type TriggerResult struct {
	Trigger         models.TriggerType `json:"trigger"`
	Matched         int                `json:"matched"`
	Rules           []RuleOutcome      `json:"rules"`
	NotificationIDs []string           `json:"notification_ids"`
	UsedFallback    bool               `json:"used_fallback"`
}

// AutomationEngine turns trigger events into notifications.
type AutomationEngine struct {
	automations   *AutomationService
	templates     *TemplateService
	notifications *NotificationService
	emitter       realtime.RefreshEmitter
	log           *zap.Logger
}

// NewAutomationEngine wires the engine.
func NewAutomationEngine(automations *AutomationService, templates *TemplateService, notifications *NotificationService, emitter realtime.RefreshEmitter) (*AutomationEngine, error) {
	if automations == nil || templates == nil || notifications == nil {
		return nil, errors.New("automation engine: automations, templates and notifications are required")
	}
	if emitter == nil {
		emitter = realtime.NopEmitter{}
	}
	return &AutomationEngine{
		automations:   automations,
		templates:     templates,
		notifications: notifications,
		emitter:       emitter,
		log:           logger.WithModule("automation"),
	}, nil
}

// Trigger evaluates every active automation for trigger. When none is configured a
// built-in message is delivered instead so the event is never dropped. Failures are
// logged and reflected in the result, never returned.
func (e *AutomationEngine) Trigger(ctx context.Context, trigger models.TriggerType, tc TriggerContext, targetUserID string) TriggerResult {
	ctx = ensureContext(ctx)
	targetUserID = strings.TrimSpace(targetUserID)
	result := TriggerResult{Trigger: trigger, Rules: []RuleOutcome{}, NotificationIDs: []string{}}

	rules, err := e.automations.ActiveForTrigger(ctx, trigger)
	if err != nil {
		e.log.Warn("load automations failed, using built-in message", zap.String("trigger", string(trigger)), zap.Error(err))
		rules = nil
	}
	result.Matched = len(rules)

	if len(rules) == 0 {
		if id, ok := e.fallback(ctx, trigger, tc, targetUserID); ok {
			result.UsedFallback = true
			result.NotificationIDs = append(result.NotificationIDs, id)
		}
	}

	for _, rule := range rules {
		outcome := e.fire(ctx, rule, tc, targetUserID)
		result.Rules = append(result.Rules, outcome)
		metrics.AutomationFirings.WithLabelValues(string(trigger), outcome.Outcome).Inc()
		if outcome.NotificationID != "" {
			result.NotificationIDs = append(result.NotificationIDs, outcome.NotificationID)
		}
	}

	if len(result.NotificationIDs) > 0 {
		e.emitter.EmitRefresh()
	}
	return result
}

func (e *AutomationEngine) fallback(ctx context.Context, trigger models.TriggerType, tc TriggerContext, targetUserID string) (string, bool) {
	vars := tc.Variables()
	title, message := DefaultMessage(trigger)

	target := targetUserID
	if target == "" {
		target = authctx.UserID(ctx)
	}
	if target == "" {
		target = string(models.AudienceAll)
	}
	broadcast := target == string(models.AudienceAll)

	input := CreateNotificationInput{
		Type:        NotificationTypeFor(trigger),
		Title:       templating.Render(title, vars),
		Message:     templating.Render(message, vars),
		IsBroadcast: broadcast,
		ProductID:   optionalString(tc.ProductID),
		DealID:      optionalString(tc.DealID),
		Metadata:    map[string]any{"trigger": string(trigger), "fallback": true},
	}
	if !broadcast {
		input.TargetUserID = &target
	}

	notification, err := e.notifications.Insert(ctx, input, SourceFallback)
	if err != nil {
		metrics.AutomationFirings.WithLabelValues(string(trigger), OutcomeFailed).Inc()
		e.log.Warn("fallback notification failed", zap.String("trigger", string(trigger)), zap.Error(err))
		return "", false
	}
	metrics.AutomationFirings.WithLabelValues(string(trigger), OutcomeFallback).Inc()
	return notification.ID, true
}

func (e *AutomationEngine) fire(ctx context.Context, rule models.NotificationAutomation, tc TriggerContext, targetUserID string) RuleOutcome {
	outcome := RuleOutcome{AutomationID: rule.ID}

	if !tc.Matches(rule.Conditions) {
		outcome.Outcome = OutcomeSkipped
		return outcome
	}

	content := e.resolveContent(ctx, rule, tc)

	input := CreateNotificationInput{
		Type:         NotificationTypeFor(rule.TriggerType),
		Title:        content.Title,
		Message:      content.Message,
		ImageURL:     content.ImageURL,
		ActionURL:    content.ActionURL,
		ProductID:    optionalString(tc.ProductID),
		DealID:       optionalString(tc.DealID),
		AutomationID: &rule.ID,
		Metadata: map[string]any{
			"trigger":         string(rule.TriggerType),
			"automation_name": rule.Name,
		},
	}
	applyScope(&input, rule.TargetAudience, targetUserID)

	notification, err := e.notifications.Insert(ctx, input, SourceAutomation)
	if err != nil {
		e.log.Warn("automation notification failed",
			zap.String("automation_id", rule.ID),
			zap.String("trigger", string(rule.TriggerType)),
			zap.Error(err))
		outcome.Outcome = OutcomeFailed
		return outcome
	}

	outcome.Outcome = OutcomeCreated
	outcome.NotificationID = notification.ID
	return outcome
}

// resolveContent picks the stored template, then the rule's inline data, then the
// built-in default. Every source is rendered with the trigger context.
func (e *AutomationEngine) resolveContent(ctx context.Context, rule models.NotificationAutomation, tc TriggerContext) models.NotificationContent {
	vars := tc.Variables()
	data := rule.NotificationData.Data()

	source := data
	if rule.TemplateID != nil && *rule.TemplateID != "" {
		tmpl, err := e.templates.Get(ctx, *rule.TemplateID)
		if err != nil {
			e.log.Warn("template lookup failed, using inline data",
				zap.String("automation_id", rule.ID),
				zap.String("template_id", *rule.TemplateID),
				zap.Error(err))
		} else {
			source = models.NotificationContent{
				Title:     tmpl.TitleTemplate,
				Message:   tmpl.MessageTemplate,
				ImageURL:  defaultIfEmpty(tmpl.ImageURL, data.ImageURL),
				ActionURL: defaultIfEmpty(tmpl.ActionURL, data.ActionURL),
			}
		}
	}

	content := models.NotificationContent{
		Title:     templating.Render(source.Title, vars),
		Message:   templating.Render(source.Message, vars),
		ImageURL:  templating.Render(source.ImageURL, vars),
		ActionURL: templating.Render(source.ActionURL, vars),
	}

	defaultTitle, defaultBody := DefaultMessage(rule.TriggerType)
	if strings.TrimSpace(content.Title) == "" || content.Title == GenericTitle {
		content.Title = templating.Render(defaultTitle, vars)
	}
	if strings.TrimSpace(content.Message) == "" {
		content.Message = templating.Render(defaultBody, vars)
	}
	return content
}

// applyScope decides who receives an automation notification.
func applyScope(input *CreateNotificationInput, audience models.Audience, targetUserID string) {
	switch {
	case audience == models.AudienceAll:
		input.IsBroadcast = true
		input.TargetUserID = nil
	case targetUserID != "":
		// "user" audiences and, permissively, any other audience given an explicit user
		input.IsBroadcast = false
		input.TargetUserID = &targetUserID
	default:
		input.IsBroadcast = false
		input.TargetUserID = nil
		input.Metadata["audience"] = string(audience)
	}
}
