// Package preference decides which channels a notification goes out on.
package preference

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	preferenceRepo "ankaa/database/repository/preference"
	"ankaa/models"
)

// Source names the rule that produced a resolution.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceRecipient Source = "recipient"
	SourceGlobal    Source = "global"
	SourceDefault   Source = "default"
)

// Policy is the configurable part of resolution.
type Policy struct {
	// Supported bounds every stored channel set. Empty means all channels.
	Supported []models.Channel
	// Fallback applies when neither a recipient preference nor a global default exists.
	Fallback []models.Channel
	// OptIn channels are never part of the fallback set.
	OptIn []models.Channel
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Channels []models.Channel
	Source   Source
	// MatchedType is the stored key that matched: the exact type or its category.
	MatchedType string
}

// Resolver applies recipient > global > default resolution.
type Resolver struct {
	store     preferenceRepo.PreferenceRepository
	supported map[models.Channel]bool
	fallback  []models.Channel
	logger    *zap.Logger
}

func NewResolver(store preferenceRepo.PreferenceRepository, policy Policy, logger *zap.Logger) *Resolver {
	supported := policy.Supported
	if len(supported) == 0 {
		supported = models.AllChannels
	}
	r := &Resolver{
		store:     store,
		supported: make(map[models.Channel]bool, len(supported)),
		logger:    logger.Named("preference"),
	}
	for _, ch := range supported {
		r.supported[ch] = true
	}

	optIn := make(map[models.Channel]bool, len(policy.OptIn))
	for _, ch := range policy.OptIn {
		optIn[ch] = true
	}
	for _, ch := range r.filter(policy.Fallback) {
		if !optIn[ch] {
			r.fallback = append(r.fallback, ch)
		}
	}
	return r
}

// Resolve returns the channels for one recipient and notification type.
// A non-empty explicit list is returned as given, minus duplicates, and is
// not checked against any preference or the supported set.
func (r *Resolver) Resolve(ctx context.Context, recipientID, notificationType string, explicit []models.Channel) (Resolution, error) {
	if len(explicit) > 0 {
		return Resolution{Channels: dedupe(explicit), Source: SourceExplicit}, nil
	}

	for _, key := range lookupKeys(notificationType) {
		pref, err := r.store.GetUserPreference(ctx, recipientID, key)
		if err != nil {
			return Resolution{}, fmt.Errorf("recipient preference %s/%s: %w", recipientID, key, err)
		}
		if pref != nil {
			return r.resolved(SourceRecipient, key, pref.Enabled, pref.Channels), nil
		}
	}

	for _, key := range lookupKeys(notificationType) {
		def, err := r.store.GetGlobalDefault(ctx, key)
		if err != nil {
			return Resolution{}, fmt.Errorf("global default %s: %w", key, err)
		}
		if def != nil {
			return r.resolved(SourceGlobal, key, def.Enabled, def.Channels), nil
		}
	}

	r.logger.Debug("No preference stored, using fallback channels",
		zap.String("recipient_id", recipientID),
		zap.String("type", notificationType),
	)
	return Resolution{Channels: append([]models.Channel(nil), r.fallback...), Source: SourceDefault}, nil
}

func (r *Resolver) resolved(src Source, key string, enabled bool, channels []models.Channel) Resolution {
	res := Resolution{Source: src, MatchedType: key, Channels: []models.Channel{}}
	if enabled {
		res.Channels = r.filter(channels)
	}
	return res
}

// filter keeps supported channels, deduplicated, in AllChannels order.
func (r *Resolver) filter(channels []models.Channel) []models.Channel {
	want := make(map[models.Channel]bool, len(channels))
	for _, ch := range channels {
		want[ch] = true
	}
	out := []models.Channel{}
	for _, ch := range models.AllChannels {
		if want[ch] && r.supported[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// lookupKeys returns the exact type followed by its category ("task.created" -> "task").
func lookupKeys(notificationType string) []string {
	keys := []string{notificationType}
	if i := strings.Index(notificationType, "."); i > 0 {
		keys = append(keys, notificationType[:i])
	}
	return keys
}

func dedupe(channels []models.Channel) []models.Channel {
	seen := make(map[models.Channel]bool, len(channels))
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}
