package models

// FeedChannel names the real-time stream post events are published on.
const FeedChannel = "posts"

// Feed event actions.
const (
	FeedActionCreate = "create"
	FeedActionUpdate = "update"
	FeedActionDelete = "delete"
)

// FeedEvent is one post change broadcast to feed listeners. Post carries the
// full record for create/update and only the id for delete.
type FeedEvent struct {
	Channel string `json:"channel"`
	Action  string `json:"action"`
	Post    any    `json:"post"`
}

// NewFeedEvent builds an event on FeedChannel.
func NewFeedEvent(action string, post any) FeedEvent {
	return FeedEvent{Channel: FeedChannel, Action: action, Post: post}
}
