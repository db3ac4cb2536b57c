package domain

const (
	EventNewNotification      = "NEW_NOTIFICATION"
	EventNotificationRead     = "NOTIFICATION_READ"
	EventAllNotificationsRead = "ALL_NOTIFICATIONS_READ"
)

// TopicFor returns the per-user notification topic, or "" when there is no user.
func TopicFor(userID string) string {
	if userID == "" {
		return ""
	}
	return "/topic/notifications/" + userID
}
