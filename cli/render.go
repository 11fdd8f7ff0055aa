package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/chatrelay/internal/conversation"
)

var (
	promptStyle    = lipgloss.NewStyle().Bold(true)
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
)

// renderer prints messages as they are appended to the conversation.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
	loading bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

// Render is a conversation listener. The user's own line is already on screen,
// so only assistant messages are echoed.
func (r *renderer) Render(st conversation.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(st.Messages) < r.printed {
		r.printed = 0
	}
	for _, msg := range st.Messages[r.printed:] {
		if msg.Role == conversation.RoleAssistant {
			fmt.Fprintf(r.out, "%s %s\n", assistantStyle.Render("bot:"), msg.Content)
		}
	}
	r.printed = len(st.Messages)

	if st.IsLoading && !r.loading {
		fmt.Fprintln(r.out, pendingStyle.Render("waiting for reply..."))
	}
	r.loading = st.IsLoading
}
