package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/session"
)

// printer writes messages once each, in transcript order.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	json    bool
	printed map[string]struct{}
	lastErr string
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON, printed: make(map[string]struct{})}
}

// state is a session.Controller subscriber.
func (p *printer) state(st session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]struct{}, len(st.Messages))
	for _, m := range st.Messages {
		current[m.ID] = struct{}{}
		if _, ok := p.printed[m.ID]; ok {
			continue
		}
		p.writeLocked(m)
	}
	// Evicted messages can't come back; keep the set bounded by the transcript.
	p.printed = current

	if st.LastError != p.lastErr {
		p.lastErr = st.LastError
		if st.LastError != "" && !p.json {
			fmt.Fprintf(p.w, "! %s\n", st.LastError)
		}
	}
}

func (p *printer) message(m chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(m)
}

func (p *printer) writeLocked(m chat.Message) {
	if p.json {
		_ = json.NewEncoder(p.w).Encode(m)
		return
	}
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	fmt.Fprintf(p.w, "%s %s: %s  [%s]\n", m.Timestamp.Local().Format("15:04:05"), author, m.Text, m.ID)
}
