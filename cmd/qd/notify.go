package main

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/config"
	"github.com/zulandar/querydesk/internal/guard"
	"github.com/zulandar/querydesk/internal/telegraph"
	"github.com/zulandar/querydesk/internal/telegraph/discord"
	"github.com/zulandar/querydesk/internal/telegraph/mail"
	"github.com/zulandar/querydesk/internal/telegraph/slack"
	"gorm.io/gorm"
)

// buildAdapters creates an adapter for every platform with credentials in
// cfg.
func buildAdapters(cfg config.TelegraphConfig) ([]telegraph.Adapter, error) {
	var adapters []telegraph.Adapter

	if cfg.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Mail.Host != "" {
		a, err := mail.New(mail.AdapterOpts{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Contacts: cfg.Mail.Contacts,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// newNotifier builds and connects the configured adapters.
func newNotifier(ctx context.Context, cfg config.TelegraphConfig) (*telegraph.Notifier, error) {
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegraph: %w", err)
	}
	n := telegraph.NewNotifier(telegraph.NotifierOpts{Adapters: adapters})
	n.Connect(ctx)
	return n, nil
}

// services holds the shared collaborators of the approval router.
type services struct {
	router   *approval.Router
	notifier *telegraph.Notifier
	lock     *guard.Lock // nil without redis
}

// Close releases the notifier and lock.
func (s *services) Close() {
	s.notifier.Close()
	if s.lock != nil {
		s.lock.Close()
	}
}

// newServices wires an approval router with the decision lock and
// notifications.
func newServices(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) (*services, error) {
	n, err := newNotifier(ctx, cfg.Telegraph)
	if err != nil {
		return nil, err
	}
	svc := &services{notifier: n}
	opts := approval.RouterOpts{DB: gormDB}
	if n.Enabled() {
		opts.Notifier = n
	}

	if cfg.Redis.URL != "" {
		lock, err := guard.Dial(cfg.Redis.URL, cfg.Redis.LockTTL)
		if err != nil {
			// Decisions stay safe on the store's conditional update alone.
			log.Printf("qd: decision lock disabled: %v", err)
		} else {
			svc.lock = lock
			opts.Locker = lock
		}
	}

	svc.router, err = approval.NewRouter(opts)
	if err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}
