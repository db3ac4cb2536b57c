package domain

import "errors"

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrInvalidNotificationID = errors.New("notification id must be positive")
	ErrUnknownEvent          = errors.New("unknown notification event")
	ErrMissingNotificationID = errors.New("notification event carries no id")
	ErrFeedClosed            = errors.New("notification feed closed")
)
