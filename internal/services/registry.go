package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/bitebell/internal/localstore"
	"github.com/charlesng35/bitebell/internal/realtime"
)

// RegistryConfig lists the collaborators shared by every service.
type RegistryConfig struct {
	Emitter realtime.RefreshEmitter
	// Local backs the facade fallback. Without it the facade is not built.
	Local *localstore.Store
	// Remote is the functions client used by the facade; nil serves everything locally.
	Remote    RemoteFunctions
	ListLimit int
	Clock     func() time.Time
}

// Registry holds the wired service graph used by the HTTP layer and the scheduler.
type Registry struct {
	Templates     *TemplateService
	Automations   *AutomationService
	Notifications *NotificationService
	Engine        *AutomationEngine
	Campaigns     *CampaignService
	Engagement    *EngagementService
	Users         *UserService
	Facade        *NotificationFacade
}

// NewRegistry builds every service on top of db.
func NewRegistry(db *gorm.DB, cfg RegistryConfig) (*Registry, error) {
	if db == nil {
		return nil, errors.New("services: db is required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = realtime.NopEmitter{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := &Registry{}
	var err error
	if r.Templates, err = NewTemplateService(db); err != nil {
		return nil, err
	}
	if r.Automations, err = NewAutomationService(db); err != nil {
		return nil, err
	}
	if r.Notifications, err = NewNotificationService(db, emitter); err != nil {
		return nil, err
	}
	if r.Engine, err = NewAutomationEngine(r.Automations, r.Templates, r.Notifications, emitter); err != nil {
		return nil, err
	}
	if r.Campaigns, err = NewCampaignService(db, r.Notifications, emitter, WithCampaignClock(clock)); err != nil {
		return nil, err
	}
	if r.Engagement, err = NewEngagementService(db, r.Notifications, r.Campaigns, emitter); err != nil {
		return nil, err
	}
	r.Engagement.now = clock
	if r.Users, err = NewUserService(db, r.Engine); err != nil {
		return nil, err
	}
	if cfg.Local != nil {
		if r.Facade, err = NewNotificationFacade(cfg.Remote, cfg.Local, cfg.ListLimit); err != nil {
			return nil, err
		}
	}
	return r, nil
}
