package llm

import (
	"context"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first", "second")

	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("expected 'first', got %q", resp.Content)
	}
	if mock.PeekNext() != "second" {
		t.Errorf("expected 'second' queued, got %q", mock.PeekNext())
	}

	if _, err := mock.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatalf("expected error after responses exhausted")
	}
	if mock.CallCount != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount)
	}
}

func TestNullProvider(t *testing.T) {
	null := NewNull()
	_, err := null.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err == nil {
		t.Fatalf("expected error from null provider")
	}
	if !errors.IsCode(err, errors.CodeCollaboratorUnavailable) {
		t.Errorf("expected COLLABORATOR_UNAVAILABLE, got %s", errors.CodeOf(err))
	}
}
