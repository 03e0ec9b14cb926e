package enums

import "fmt"

// NotificationType labels the auction signals delivered to users.
type NotificationType string

const (
	NotificationTypeOutbid        NotificationType = "outbid"
	NotificationTypeAuctionWon    NotificationType = "auction_won"
	NotificationTypeAuctionSold   NotificationType = "auction_sold"
	NotificationTypeFundsReleased NotificationType = "funds_released"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOutbid,
	NotificationTypeAuctionWon,
	NotificationTypeAuctionSold,
	NotificationTypeFundsReleased,
}

// IsValid reports whether the value is a known NotificationType.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
