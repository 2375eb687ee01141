// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/memory"
)

const chatSystemPrompt = "You are a helpful AI assistant. Use available tools when needed to answer questions."

// chatHistoryLimit bounds how many stored messages Chat fetches; only the
// most recent chatContextTail of those reach the prompt.
const (
	chatHistoryLimit = 10
	chatContextTail  = 5
)

// Chat answers one conversational message inside a session, using recent
// history and library search hits as context. It requires a chat model
// (WithChatModel); session store faults degrade to warnings, the same
// contract as the run loop.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (string, error) {
	if a.chatProvider == nil {
		return "", errors.WrapCollaborator("chat model", nil)
	}
	if a.sessions != nil {
		if err := a.sessions.CreateSession(ctx, sessionID); err != nil {
			a.warnSession(sessionID, "create", err)
		}
		err := a.sessions.AppendMessage(ctx, memory.Message{
			SessionID: sessionID,
			Role:      string(llm.RoleUser),
			Content:   message,
		})
		if err != nil {
			a.warnSession(sessionID, "append", err)
		}
	}

	prompt := fmt.Sprintf("Context: %s\n\nUser: %s", a.chatContext(ctx, sessionID, message), message)
	resp, err := a.chatProvider.Chat(ctx, llm.ChatRequest{
		Model: a.chatModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: chatSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.WrapCollaborator("language model", err)
	}
	a.ledger.AddUsage(resp.Usage)

	if a.sessions != nil {
		err := a.sessions.AppendMessage(ctx, memory.Message{
			SessionID: sessionID,
			Role:      string(llm.RoleAssistant),
			Content:   resp.Content,
		})
		if err != nil {
			a.warnSession(sessionID, "append", err)
		}
	}
	return resp.Content, nil
}

// chatContext renders the most recent session messages plus any library
// hits for the current message. Lookup failures leave their section out.
func (a *Agent) chatContext(ctx context.Context, sessionID, message string) string {
	var b strings.Builder
	b.WriteString(a.conversationContext(ctx, sessionID))
	if docs := a.libraryContext(ctx, message); docs != "" {
		b.WriteString("\n\nRelevant documents:\n")
		b.WriteString(docs)
	}
	return b.String()
}

func (a *Agent) conversationContext(ctx context.Context, sessionID string) string {
	if a.sessions == nil {
		return "No previous conversation."
	}
	history, err := a.sessions.History(ctx, sessionID, chatHistoryLimit)
	if err != nil {
		a.warnSession(sessionID, "history", err)
		return "No previous conversation."
	}
	if len(history) == 0 {
		return "No previous conversation."
	}
	if len(history) > chatContextTail {
		history = history[len(history)-chatContextTail:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation:")
	for _, msg := range history {
		fmt.Fprintf(&b, "\n%s: %s", msg.Role, truncate(msg.Content, 100))
	}
	return b.String()
}

func (a *Agent) libraryContext(ctx context.Context, query string) string {
	if a.library == nil {
		return ""
	}
	hits, err := a.library.Search(ctx, query, 3)
	if err != nil {
		a.logger.Warn("agent.chat.search_error",
			slog.String("error", err.Error()),
		)
		return ""
	}
	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, "- "+truncate(hit.Text, 200))
	}
	return strings.Join(lines, "\n")
}
