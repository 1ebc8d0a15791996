// Package formatter renders notifications into channel-specific payloads.
//
// A registry maps notification types to renderers. Renderers produce a
// channel-neutral Content; the formatter then applies the channel's rules
// (chat markup, HTML email, 160-character SMS, push data). Any renderer error
// or panic degrades to the generic renderer so formatting never fails a delivery.
package formatter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/links"
)

// SMSLimit is the maximum SMS length in characters.
const SMSLimit = 160

const ellipsis = "..."

// Input is what a renderer sees.
type Input struct {
	NotificationID string
	Type           string
	Title          string
	Body           string
	Importance     models.Importance
	Metadata       map[string]any
	Link           string
}

// Content is the channel-neutral rendering of a notification.
type Content struct {
	Emoji  string
	Title  string
	Body   string
	Fields []models.Field
}

// Renderer renders one notification type.
type Renderer func(in Input) (Content, error)

// Formatter holds the renderer registry.
type Formatter struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	links     *links.Resolver
	logger    *zap.Logger
}

// New returns a Formatter with the built-in renderers registered.
func New(resolver *links.Resolver, logger *zap.Logger) *Formatter {
	if resolver == nil {
		resolver = links.NewResolver("")
	}
	f := &Formatter{
		renderers: make(map[string]Renderer),
		links:     resolver,
		logger:    logger.Named("formatter"),
	}
	registerBuiltins(f)
	return f
}

// Register adds or replaces the renderer for a notification type.
func (f *Formatter) Register(notificationType string, r Renderer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renderers[notificationType] = r
}

// Registered reports whether a renderer exists for the type.
func (f *Formatter) Registered(notificationType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.renderers[notificationType]
	return ok
}

// Format renders job for ch. It never fails.
func (f *Formatter) Format(ch models.Channel, job models.DeliveryJob) models.ChannelPayload {
	link := job.ActionLink
	if link == "" {
		link = f.links.Resolve(ch, job.Metadata)
	}
	in := Input{
		NotificationID: job.NotificationID,
		Type:           job.Type,
		Title:          job.Title,
		Body:           job.Body,
		Importance:     job.Priority,
		Metadata:       job.Metadata,
		Link:           link,
	}
	content := f.render(in)
	if content.Emoji == "" {
		content.Emoji = importanceEmoji(in.Importance)
	}

	var payload models.ChannelPayload
	switch ch {
	case models.ChannelWhatsApp:
		payload = chatPayload(content, in)
	case models.ChannelEmail:
		payload = f.emailPayload(content, in)
	case models.ChannelSMS:
		payload = smsPayload(content, in.Link)
	default:
		payload = dataPayload(content, in)
	}
	payload.Fields = content.Fields
	return payload
}

func (f *Formatter) render(in Input) (content Content) {
	f.mu.RLock()
	r, ok := f.renderers[in.Type]
	f.mu.RUnlock()
	if !ok {
		return Generic(in)
	}

	defer func() {
		if rec := recover(); rec != nil {
			f.logger.Warn("Renderer panicked, using generic renderer",
				zap.String("type", in.Type),
				zap.String("notification_id", in.NotificationID),
				zap.Any("panic", rec),
			)
			content = Generic(in)
		}
	}()

	content, err := r(in)
	if err != nil {
		f.logger.Warn("Renderer failed, using generic renderer",
			zap.String("type", in.Type),
			zap.String("notification_id", in.NotificationID),
			zap.Error(err),
		)
		return Generic(in)
	}
	if content.Title == "" {
		content.Title = in.Title
	}
	if content.Body == "" {
		content.Body = in.Body
	}
	return content
}

// Generic renders title, body, then one field per scalar metadata entry in key
// order. Link variants are left out of the fields because the link is rendered
// on its own.
func Generic(in Input) Content {
	skip := make(map[string]bool, len(links.LinkKeys))
	for _, k := range links.LinkKeys {
		skip[k] = true
	}

	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var fields []models.Field
	for _, k := range keys {
		if v, ok := scalar(in.Metadata[k]); ok {
			fields = append(fields, models.Field{Label: k, Value: v})
		}
	}
	return Content{Title: in.Title, Body: in.Body, Fields: fields}
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(val), true
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}

func importanceEmoji(i models.Importance) string {
	switch i {
	case models.ImportanceUrgent:
		return "🚨"
	case models.ImportanceHigh:
		return "⚠️"
	case models.ImportanceLow:
		return "ℹ️"
	default:
		return "🔔"
	}
}

func importanceLabel(i models.Importance) string {
	switch i {
	case models.ImportanceUrgent:
		return "Urgent"
	case models.ImportanceHigh:
		return "High priority"
	}
	return ""
}

// chatPayload renders WhatsApp-style markup: *bold*, _italic_.
func chatPayload(c Content, in Input) models.ChannelPayload {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", c.Emoji, strings.TrimSpace(c.Title))
	if body := strings.TrimSpace(c.Body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if len(c.Fields) > 0 {
		b.WriteString("\n")
		for _, fld := range c.Fields {
			fmt.Fprintf(&b, "\n• *%s:* %s", fld.Label, fld.Value)
		}
	}
	if label := importanceLabel(in.Importance); label != "" {
		fmt.Fprintf(&b, "\n\n_%s_", label)
	}
	if in.Link != "" {
		fmt.Fprintf(&b, "\n\n🔗 %s", in.Link)
	}
	return models.ChannelPayload{Title: c.Title, Body: b.String(), Link: in.Link}
}

// smsPayload renders plain text hard-limited to SMSLimit characters. The link
// is appended only when it fits whole.
func smsPayload(c Content, link string) models.ChannelPayload {
	text := strings.TrimSpace(c.Body)
	if title := strings.TrimSpace(c.Title); title != "" {
		if text == "" {
			text = title
		} else {
			text = title + ": " + text
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > SMSLimit {
		cut := string(runes[:SMSLimit-len(ellipsis)])
		return models.ChannelPayload{Title: c.Title, Body: cut + ellipsis, TruncatedBody: true}
	}
	if link != "" && len(runes)+1+len([]rune(link)) <= SMSLimit {
		return models.ChannelPayload{Title: c.Title, Body: text + " " + link, Link: link}
	}
	return models.ChannelPayload{Title: c.Title, Body: text}
}

// dataPayload renders push and in-app messages.
func dataPayload(c Content, in Input) models.ChannelPayload {
	data := map[string]string{
		"notificationId": in.NotificationID,
		"type":           in.Type,
	}
	if in.Importance != "" {
		data["importance"] = string(in.Importance)
	}
	if in.Link != "" {
		data["link"] = in.Link
	}
	return models.ChannelPayload{
		Title: c.Title,
		Body:  c.Body,
		Link:  in.Link,
		Data:  data,
	}
}
