// ABOUTME: Transcript views: JSON entries and a goldmark-rendered HTML page
// ABOUTME: Bot message text is markdown; user text is always escaped verbatim

package httpapi

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/store"
)

type entryJSON struct {
	ID        string           `json:"id,omitempty"`
	Sender    string           `json:"sender"`
	Text      string           `json:"text,omitempty"`
	File      *fileJSON        `json:"file,omitempty"`
	ChainMeta *store.ChainMeta `json:"chain_meta,omitempty"`
	Persist   string           `json:"persist"`
	CreatedAt time.Time        `json:"created_at"`
	CanRate   bool             `json:"can_rate"`
}

type fileJSON struct {
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PreviewKind string `json:"preview_kind"`
}

func entryView(e conversation.Entry) entryJSON {
	view := entryJSON{
		ID:        e.Message.ID,
		Sender:    e.Message.Sender,
		Text:      e.Message.Text,
		ChainMeta: e.Message.ChainMeta,
		Persist:   e.Persist,
		CreatedAt: e.Message.CreatedAt,
		CanRate:   e.FeedbackEligible(),
	}
	if f := e.Message.File; f != nil {
		view.File = &fileJSON{
			Name:        f.Name,
			MimeType:    f.MimeType,
			SizeBytes:   f.SizeBytes,
			PreviewKind: f.PreviewKind,
		}
	}
	return view
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	entries := sess.Transcript()
	views := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.AgentName}} — transcript</title></head>
<body>
<h1>Chat with {{.AgentName}}</h1>
{{range .Entries}}
<div class="message {{.Sender}}">
{{.Body}}
{{if .ChainNote}}<div class="chain-note">{{.ChainNote}}</div>{{end}}
{{if .FileNote}}<div class="file-note">{{.FileNote}}</div>{{end}}
</div>
{{end}}
</body>
</html>
`))

type transcriptEntry struct {
	Sender    string
	Body      template.HTML
	ChainNote string
	FileNote  string
}

// handleTranscriptHTML renders the transcript as HTML. Bot replies are
// markdown and go through goldmark; user text is escaped as-is.
func (s *Server) handleTranscriptHTML(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	agent := sess.Agent()

	var entries []transcriptEntry
	for _, e := range sess.Transcript() {
		entry := transcriptEntry{Sender: e.Message.Sender}

		if e.Message.Sender == store.SenderBot {
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(e.Message.Text), &buf); err != nil {
				s.logger.Error("failed to render markdown", "error", err)
				buf.Reset()
				buf.WriteString("<p>" + html.EscapeString(e.Message.Text) + "</p>")
			}
			entry.Body = template.HTML(buf.String())
		} else {
			entry.Body = template.HTML("<p>" + html.EscapeString(e.Message.Text) + "</p>")
		}

		if cm := e.Message.ChainMeta; cm != nil {
			entry.ChainNote = fmt.Sprintf("Combined using %s + %s", cm.Primary, cm.Secondary)
		}
		if f := e.Message.File; f != nil {
			entry.FileNote = fmt.Sprintf("%s (%.1f KB)", f.Name, float64(f.SizeBytes)/1024)
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTmpl.Execute(w, map[string]any{
		"AgentName": agent.Name,
		"Entries":   entries,
	}); err != nil {
		s.logger.Error("failed to render transcript", "error", err)
	}
}
