package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","sender_id":7,"receiver_id":3,"message":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.SenderID != 7 {
		t.Errorf("expected sender_id 7, got %d", sm.SenderID)
	}
	if sm.ReceiverID != 3 {
		t.Errorf("expected receiver_id 3, got %d", sm.ReceiverID)
	}
	if sm.Message != "Hello!" {
		t.Errorf("expected message %q, got %q", "Hello!", sm.Message)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid typing message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Typing(t *testing.T) {
	input := []byte(`{"type":"typing","user_id":7,"typing":true}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeTyping {
		t.Fatalf("expected type %q, got %q", TypeTyping, msgType)
	}

	tm, ok := msg.(TypingMsg)
	if !ok {
		t.Fatalf("expected TypingMsg, got %T", msg)
	}
	if tm.UserID != 7 {
		t.Errorf("expected user_id 7, got %d", tm.UserID)
	}
	if !tm.Typing {
		t.Error("expected typing to be true")
	}
}

// ---------------------------------------------------------------------------
// Test: Rejecting malformed and unknown messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"message":"hi"}`)); err == nil {
		t.Error("expected error for missing type field")
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	msgType, _, err := ParseClientMessage([]byte(`{"type":"chat_message","content":"spoofed"}`))
	if err == nil {
		t.Error("server-only types must be rejected from clients")
	}
	if msgType != TypeChatMessage {
		t.Errorf("expected type echoed back, got %q", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a chat_message server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_ChatMessage(t *testing.T) {
	payload := ChatMessageMsg{
		ID:         42,
		SenderID:   7,
		ReceiverID: 3,
		Content:    "still available?",
		Timestamp:  1750000000,
	}

	data, err := NewServerMessage(TypeChatMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeChatMessage {
		t.Errorf("expected type %q, got %v", TypeChatMessage, result["type"])
	}
	if result["sender_id"] != float64(7) {
		t.Errorf("expected sender_id 7, got %v", result["sender_id"])
	}
	if result["content"] != "still available?" {
		t.Errorf("expected content preserved, got %v", result["content"])
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a conversation_list_update server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_ConversationListUpdate(t *testing.T) {
	payload := ConversationListUpdateMsg{
		Conversation: ConversationSummary{
			ConversationID: 12,
			Participants:   []int64{3, 7},
			LastPreview:    "see you tomorrow",
			LastTimestamp:  1750000000,
		},
	}

	data, err := NewServerMessage(TypeConversationListUpdate, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Type         string              `json:"type"`
		Conversation ConversationSummary `json:"conversation"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result.Type != TypeConversationListUpdate {
		t.Errorf("expected type %q, got %q", TypeConversationListUpdate, result.Type)
	}
	if result.Conversation.ConversationID != 12 {
		t.Errorf("expected conversation_id 12, got %d", result.Conversation.ConversationID)
	}
	if len(result.Conversation.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(result.Conversation.Participants))
	}
}
