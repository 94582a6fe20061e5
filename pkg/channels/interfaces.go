package channels

import "context"

// MessageEditor is implemented by channels that can edit a previously
// sent message in place. messageID is always the channel's own string
// form of its native message identifier.
type MessageEditor interface {
	EditMessage(ctx context.Context, chatID string, messageID string, content string) error
}

// MessageLengthProvider is an opt-in interface channels implement to
// advertise their maximum message length. Manager uses this via type
// assertion to decide whether to split an outbound message.
type MessageLengthProvider interface {
	MaxMessageLength() int
}
