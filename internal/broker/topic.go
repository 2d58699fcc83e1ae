package broker

import "fmt"

// Topic is a typed pub/sub channel name. Constructors below are the only
// way the engine forms topic names, so a logical conversation can never end
// up with two differently-spelled topics.
type Topic string

// ConversationTopic carries message and typing events for one conversation.
func ConversationTopic(conversationID int64) Topic {
	return Topic(fmt.Sprintf("conversation.%d", conversationID))
}

// InboxTopic carries conversation-list summary updates for one user,
// independent of whether the user has any room open.
func InboxTopic(userID int64) Topic {
	return Topic(fmt.Sprintf("inbox.%d", userID))
}

// PresenceTopic carries online/offline transitions for one user.
func PresenceTopic(userID int64) Topic {
	return Topic(fmt.Sprintf("presence.%d", userID))
}

func (t Topic) String() string { return string(t) }
