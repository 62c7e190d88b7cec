package types

// ChannelProfile is the public view of a user's channel together with
// its subscription graph aggregates.
type ChannelProfile struct {
	ID         int    `json:"id"`
	FullName   string `json:"fullName"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
	CoverImage string `json:"coverImage"`

	// SubscriberCount is the number of users subscribed to this channel.
	SubscriberCount int `json:"subscriberCount"`

	// SubscribedToCount is the number of channels this user subscribes to.
	SubscribedToCount int `json:"subscribedToCount"`

	// IsViewerSubscribed is true when the requesting user subscribes to
	// this channel. Anonymous viewers always see false.
	IsViewerSubscribed bool `json:"isSubscribed"`
}

// Subscription is an edge from a subscriber to a channel.
type Subscription struct {
	SubscriberID int `json:"subscriberId" db:"subscriber_id"`
	ChannelID    int `json:"channelId" db:"channel_id"`
}
