package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/swapnest/chat-engine/internal/conversation"
)

// RoutePrefix is the leading token of a conversation room identifier.
const RoutePrefix = "conversation"

// ParseConversationRoute parses a room identifier of the form
// "conversation_{idA}_{idB}" into a canonical participant pair. The two ids
// must be distinct positive integers; anything else fails with
// conversation.ErrInvalidParticipants so the caller closes the connection
// before subscribing to anything.
func ParseConversationRoute(room string) (conversation.Pair, error) {
	parts := strings.Split(room, "_")
	if len(parts) != 3 || parts[0] != RoutePrefix {
		return conversation.Pair{}, fmt.Errorf("session: malformed room %q: %w",
			room, conversation.ErrInvalidParticipants)
	}

	a, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return conversation.Pair{}, fmt.Errorf("session: non-numeric id in room %q: %w",
			room, conversation.ErrInvalidParticipants)
	}
	b, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return conversation.Pair{}, fmt.Errorf("session: non-numeric id in room %q: %w",
			room, conversation.ErrInvalidParticipants)
	}

	return conversation.NewPair(a, b)
}
