package utils

const (
	// ProfileNameKey is the key for profile names used in routing parameters.
	ProfileNameKey = "profileName"

	// PostIdKey is the key for post IDs used in routing parameters.
	PostIdKey = "postId"

	// NotificationIdKey is the key for notification IDs used in routing parameters.
	NotificationIdKey = "notificationId"

	// OffsetParamKey is the key for offset used in pagination query parameters.
	OffsetParamKey = "offset"

	// LimitParamKey is the key for limit used in pagination query parameters.
	LimitParamKey = "limit"

	// QueryParamKey is the key for a generic query used in query parameters.
	QueryParamKey = "q"
)
