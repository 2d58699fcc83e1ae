package session

import (
	"errors"
	"testing"

	"github.com/swapnest/chat-engine/internal/conversation"
)

func TestParseConversationRoute(t *testing.T) {
	pair, err := ParseConversationRoute("conversation_3_7")
	if err != nil {
		t.Fatalf("ParseConversationRoute: %v", err)
	}
	if pair.Low != 3 || pair.High != 7 {
		t.Fatalf("got pair (%d,%d), want (3,7)", pair.Low, pair.High)
	}
}

func TestParseConversationRouteIsOrderIndependent(t *testing.T) {
	a, err := ParseConversationRoute("conversation_7_3")
	if err != nil {
		t.Fatalf("ParseConversationRoute(conversation_7_3): %v", err)
	}
	b, err := ParseConversationRoute("conversation_3_7")
	if err != nil {
		t.Fatalf("ParseConversationRoute(conversation_3_7): %v", err)
	}
	if a != b {
		t.Fatalf("routes resolved to different pairs: %+v vs %+v", a, b)
	}
}

func TestParseConversationRouteRejectsMalformedRooms(t *testing.T) {
	rooms := []string{
		"",
		"undefined",
		"conversation",
		"conversation_5",
		"conversation_1_2_3",
		"conversation_a_b",
		"conversation_4_4",
		"conversation_0_2",
		"conversation_-1_2",
		"room_1_2",
	}
	for _, room := range rooms {
		if _, err := ParseConversationRoute(room); !errors.Is(err, conversation.ErrInvalidParticipants) {
			t.Errorf("ParseConversationRoute(%q): got %v, want ErrInvalidParticipants", room, err)
		}
	}
}
