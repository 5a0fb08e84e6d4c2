package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Diduck/notion-idea-pipeline/internal/config"
	"github.com/Diduck/notion-idea-pipeline/internal/credstore"
	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
	"github.com/Diduck/notion-idea-pipeline/internal/inbox"
	"github.com/Diduck/notion-idea-pipeline/internal/notion"
)

// app holds the components shared by the sync, watch and serve commands.
type app struct {
	cfg          *config.Config
	store        *credstore.Store
	inbox        *inbox.Dir
	writer       *notion.Client
	registry     *prometheus.Registry
	orchestrator *ideasync.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := credstore.Open(cfg.Credentials.DSN, credstore.Options{})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	dir, err := inbox.Open(cfg.Inbox.Dir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	writer := notion.NewClient(notion.ClientOptions{
		BaseURL:       cfg.Notion.RelayURL,
		HTTPClient:    &http.Client{Timeout: cfg.Notion.Timeout.Std()},
		APIVersion:    cfg.Notion.APIVersion,
		UserAgent:     "ideasync/" + Version,
		TitleProperty: cfg.Notion.TitleProperty,
		TagProperty:   cfg.Notion.TagProperty,
		Logger:        logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orchestrator, err := ideasync.NewOrchestrator(ideasync.OrchestratorOptions{
		Writer:  writer,
		Metrics: ideasync.NewMetrics(registry),
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{
		cfg:          cfg,
		store:        store,
		inbox:        dir,
		writer:       writer,
		registry:     registry,
		orchestrator: orchestrator,
	}, nil
}

// overrides returns the env-provided credential fields.
func (a *app) overrides() ideasync.Credentials {
	return ideasync.Credentials{
		AccessSecret: strings.TrimSpace(a.cfg.Notion.APIKey),
		CollectionID: strings.TrimSpace(a.cfg.Notion.DatabaseID),
	}
}

// credentials merges stored values with env overrides.
func (a *app) credentials() (ideasync.Credentials, error) {
	creds, err := a.store.LoadCredentials()
	if err != nil {
		return ideasync.Credentials{}, err
	}
	o := a.overrides()
	if o.AccessSecret != "" {
		creds.AccessSecret = o.AccessSecret
	}
	if o.CollectionID != "" {
		creds.CollectionID = o.CollectionID
	}
	return creds, nil
}

func (a *app) Close() error {
	a.orchestrator.Hub().Close()
	return a.store.Close()
}

// describeSyncError turns orchestrator precondition failures into the
// messages a person at the terminal expects.
func describeSyncError(err error) error {
	switch {
	case errors.Is(err, ideasync.ErrMissingCredentials):
		return errors.New("please configure Notion API Key and Database ID (ideasync credentials set, or NOTION_API_KEY and NOTION_DATABASE_ID)")
	case errors.Is(err, ideasync.ErrEmptyInput):
		return errors.New("no text found in any section to sync")
	case errors.Is(err, ideasync.ErrSyncInProgress):
		return errors.New("a sync is already running on this inbox")
	default:
		return err
	}
}
