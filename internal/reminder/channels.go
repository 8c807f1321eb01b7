package reminder

import (
	"context"
	"sync"

	"ontime/internal/praytimes"
	"ontime/internal/storage"
	logx "ontime/pkg/logx"
)

// Channels maps downloaded athan sound assets to delivery channels.
//
// Resolution order: asset-specific channel, then the per-prayer override
// (Fajr commonly has its own), then the default channel, then "" which means
// the generic system sound. Resolution never fails a scheduling pass; an
// unresolved channel just degrades.
type Channels struct {
	mu        sync.Mutex
	store     storage.Store
	log       logx.Logger
	byAsset   map[string]string
	perPrayer map[praytimes.Prayer]string
	defaultID string
}

func NewChannels(store storage.Store, log logx.Logger) *Channels {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channels{
		store:     store,
		log:       log,
		byAsset:   map[string]string{},
		perPrayer: map[praytimes.Prayer]string{},
	}
}

// Load pulls the persisted asset registry. Missing storage is fine.
func (c *Channels) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	m, err := c.store.Channels(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.byAsset = m
	c.mu.Unlock()
	c.log.Debug("channel registry loaded", logx.Int("assets", len(m)))
	return nil
}

// Register binds a sound asset to a channel and persists the binding.
func (c *Channels) Register(ctx context.Context, asset, channelID string) error {
	c.mu.Lock()
	c.byAsset[asset] = channelID
	c.mu.Unlock()
	if c.store != nil {
		return c.store.PutChannel(ctx, asset, channelID)
	}
	return nil
}

// Remove unbinds a sound asset.
func (c *Channels) Remove(ctx context.Context, asset string) error {
	c.mu.Lock()
	delete(c.byAsset, asset)
	c.mu.Unlock()
	if c.store != nil {
		return c.store.DeleteChannel(ctx, asset)
	}
	return nil
}

// SetDefault sets the fallback channel used when neither the asset nor the
// prayer has one.
func (c *Channels) SetDefault(channelID string) {
	c.mu.Lock()
	c.defaultID = channelID
	c.mu.Unlock()
}

// SetPrayerChannel installs a per-prayer override (typically Fajr).
func (c *Channels) SetPrayerChannel(p praytimes.Prayer, channelID string) {
	c.mu.Lock()
	if channelID == "" {
		delete(c.perPrayer, p)
	} else {
		c.perPrayer[p] = channelID
	}
	c.mu.Unlock()
}

// Resolve returns the channel for one (prayer, sound) pair. Total: "" means
// the system default sound.
func (c *Channels) Resolve(p praytimes.Prayer, sound string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sound != "" {
		if ch, ok := c.byAsset[sound]; ok && ch != "" {
			return ch
		}
	}
	if ch, ok := c.perPrayer[p]; ok && ch != "" {
		return ch
	}
	return c.defaultID
}
