package domain

// NotificationChannel selects the delivery transport.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotificationWelcome           NotificationKind = "welcome"
	NotificationPasswordResetLink NotificationKind = "password_reset_link"
	NotificationOrderPlaced       NotificationKind = "order_placed"
)

// Notification is a single outbound message request.
type Notification struct {
	Channel NotificationChannel
	To      string
	Kind    NotificationKind
	Params  map[string]any
}
