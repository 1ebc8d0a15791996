package models

import (
	"strings"
	"time"
)

// Channel is one outbound medium.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelInApp    Channel = "IN_APP"
)

// AllChannels lists every channel the engine knows about, in a stable order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp}

// ParseChannel accepts any casing and a few common aliases.
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMAIL", "E-MAIL":
		return ChannelEmail, true
	case "SMS":
		return ChannelSMS, true
	case "PUSH":
		return ChannelPush, true
	case "WHATSAPP", "CHAT":
		return ChannelWhatsApp, true
	case "IN_APP", "INAPP", "IN-APP":
		return ChannelInApp, true
	}
	return "", false
}

// NeedsPhone reports whether the channel addresses recipients by phone number.
func (c Channel) NeedsPhone() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// Importance ranks how urgent a notification is.
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
	ImportanceUrgent Importance = "URGENT"
)

// Notification is the immutable event record emitted by a business module.
// Only SentAt is ever written after creation.
type Notification struct {
	ID               string         `bson:"id" json:"id"`
	Type             string         `bson:"type" json:"type"`
	Title            string         `bson:"title" json:"title"`
	Body             string         `bson:"body" json:"body"`
	Importance       Importance     `bson:"importance" json:"importance"`
	Metadata         map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ExplicitChannels []Channel      `bson:"explicitChannels,omitempty" json:"explicitChannels,omitempty"`
	SentAt           *time.Time     `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
}

// Recipient carries the contact identifiers of whoever receives a notification.
type Recipient struct {
	ID        string `bson:"id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Email     string `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string `bson:"phone,omitempty" json:"phone,omitempty"`
	PushToken string `bson:"pushToken,omitempty" json:"pushToken,omitempty"`
}

// Address returns the raw contact identifier used for the given channel.
func (r Recipient) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelSMS, ChannelWhatsApp:
		return r.Phone
	case ChannelPush:
		return r.PushToken
	default:
		return r.ID
	}
}

// ActionLink holds the equivalent forms of a notification's "open" target.
type ActionLink struct {
	Web           string `json:"web,omitempty"`
	Mobile        string `json:"mobile,omitempty"`
	UniversalLink string `json:"universalLink,omitempty"`
}

// IsZero reports whether no link variant is present.
func (l ActionLink) IsZero() bool {
	return l.Web == "" && l.Mobile == "" && l.UniversalLink == ""
}

// DeliveryJob is the self-contained unit of work submitted per (notification, channel).
type DeliveryJob struct {
	NotificationID   string         `json:"notificationId"`
	Type             string         `json:"type"`
	Channel          Channel        `json:"channel"`
	RecipientID      string         `json:"recipientId"`
	RecipientName    string         `json:"recipientName,omitempty"`
	RecipientAddress string         `json:"recipientAddress,omitempty"`
	Title            string         `json:"title"`
	Body             string         `json:"body"`
	ActionLink       string         `json:"actionLink,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Priority         Importance     `json:"priority"`
	Attempts         int            `json:"attempts"`
	// Deferrals counts rate-limit postponements; they do not consume Attempts.
	Deferrals int `json:"deferrals,omitempty"`
	// UnclassifiedRetries counts retries spent on errors of no known class.
	UnclassifiedRetries int `json:"unclassifiedRetries,omitempty"`
}

// Field is a labelled value rendered by channels that support structure.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ChannelPayload is the rendered, channel-specific message.
type ChannelPayload struct {
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	TruncatedBody bool              `json:"truncatedBody,omitempty"`
	HTML          string            `json:"html,omitempty"`
	Fields        []Field           `json:"fields,omitempty"`
	Link          string            `json:"link,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
}

// InboxMessage is an in-app notification stored for a recipient.
type InboxMessage struct {
	ID             string            `bson:"id" json:"id"`
	NotificationID string            `bson:"notificationId" json:"notificationId"`
	RecipientID    string            `bson:"recipientId" json:"recipientId"`
	Title          string            `bson:"title" json:"title"`
	Body           string            `bson:"body" json:"body"`
	Data           map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	Read           bool              `bson:"read" json:"read"`
	CreatedAt      time.Time         `bson:"createdAt" json:"createdAt"`
}
