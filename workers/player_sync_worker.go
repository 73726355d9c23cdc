// workers/player_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"tournament-league/config"
	"tournament-league/models"
	"tournament-league/utils"
)

// IdentityStore applies mirrored profile changes to local players.
type IdentityStore interface {
	UpsertIdentities(ctx context.Context, profiles []models.RemoteProfile) (upserted, failed int)
}

// profileChangesResponse is the top-level structure of the profile service feed.
type profileChangesResponse struct {
	Users []models.RemoteProfile `json:"users"`
}

// PlayerSyncWorker mirrors username and country from the profile service.
// Coins and level are never touched.
type PlayerSyncWorker struct {
	store        IdentityStore
	log          *zap.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	mu    sync.Mutex
	since time.Time
}

func NewPlayerSyncWorker(store IdentityStore, cfg config.SyncConfig, log *zap.Logger) *PlayerSyncWorker {
	return &PlayerSyncWorker{
		store:        store,
		log:          log,
		interval:     1 * time.Minute,
		baseURL:      cfg.BaseURL,
		endpointPath: cfg.EndpointPath,
		serviceToken: cfg.ServiceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
	}
}

func (w *PlayerSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting player sync worker", zap.String("base_url", w.baseURL))
	go w.run(ctx)
}

func (w *PlayerSyncWorker) run(ctx context.Context) {
	if err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial player sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				w.log.Error("player sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("player sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches the changes since the last seen update and applies them.
func (w *PlayerSyncWorker) SyncOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	profiles, err := w.fetch(ctx, w.since)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return nil
	}

	upserted, failed := w.store.UpsertIdentities(ctx, profiles)
	for _, p := range profiles {
		if p.UpdatedAt.After(w.since) {
			w.since = p.UpdatedAt
		}
	}
	w.log.Info("players synced",
		zap.Int("received", len(profiles)),
		zap.Int("upserted", upserted),
		zap.Int("failed", failed),
		zap.Time("cursor", w.since),
	)
	return nil
}

func (w *PlayerSyncWorker) fetch(ctx context.Context, since time.Time) ([]models.RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, body)
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync service response: %w", err)
	}
	return out.Users, nil
}
