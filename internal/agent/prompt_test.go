package agent

import (
	"strings"
	"testing"

	"novabot/internal/domain"
)

func TestBuildFullPrompt(t *testing.T) {
	pb := NewPromptBuilder(PromptConfig{})
	prompt := pb.Build(PromptInput{
		Profile: domain.Profile{Name: "Alex", Location: "Berlin", Preferences: []string{"jazz", "coffee"}},
		Memories: []domain.ScoredMemory{
			{MemoryItem: domain.MemoryItem{Text: "User discussed: weekend plans"}},
		},
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "hello"},
			{Role: domain.RoleAssistant, Content: "hi Alex"},
		},
		Message: "what should I do today?",
	})

	for _, want := range []string{
		defaultSystemPrompt,
		"USER PROFILE:",
		"- name: Alex",
		"- location: Berlin",
		"- preferences: jazz, coffee",
		"RELEVANT PAST CONTEXT:",
		"- User discussed: weekend plans",
		"CURRENT CONVERSATION:",
		"User: hello",
		"Assistant: hi Alex",
		"User: what should I do today?",
		"Nova:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n%s", want, prompt)
		}
	}

	// Section ordering: profile before memories before conversation.
	pi := strings.Index(prompt, "USER PROFILE:")
	mi := strings.Index(prompt, "RELEVANT PAST CONTEXT:")
	ci := strings.Index(prompt, "CURRENT CONVERSATION:")
	if !(pi < mi && mi < ci) {
		t.Fatalf("sections out of order: %d %d %d", pi, mi, ci)
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	pb := NewPromptBuilder(PromptConfig{})
	prompt := pb.Build(PromptInput{Message: "hi"})

	for _, absent := range []string{"USER PROFILE:", "RELEVANT PAST CONTEXT:", "CURRENT CONVERSATION:"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("empty tier rendered section %q", absent)
		}
	}
	if !strings.HasSuffix(prompt, "Nova:") {
		t.Fatalf("prompt must end with the assistant cue:\n%s", prompt)
	}
}

func TestBuildCapsHistoryWindow(t *testing.T) {
	pb := NewPromptBuilder(PromptConfig{})
	var history []domain.Message
	for _, c := range []string{"one", "two", "three", "four", "five", "six", "seven", "eight"} {
		history = append(history, domain.Message{Role: domain.RoleUser, Content: c})
	}
	prompt := pb.Build(PromptInput{History: history, Message: "now"})

	if strings.Contains(prompt, "User: one") || strings.Contains(prompt, "User: two") {
		t.Fatal("oldest messages must fall outside the prompt window")
	}
	if !strings.Contains(prompt, "User: three") || !strings.Contains(prompt, "User: eight") {
		t.Fatal("recent messages missing from the prompt window")
	}
}

func TestBuildCustomPersona(t *testing.T) {
	pb := NewPromptBuilder(PromptConfig{SystemPrompt: "You are Iris.", AssistantName: "Iris"})
	prompt := pb.Build(PromptInput{Message: "hi"})
	if !strings.Contains(prompt, "You are Iris.") || !strings.HasSuffix(prompt, "Iris:") {
		t.Fatalf("custom persona not applied:\n%s", prompt)
	}
}
