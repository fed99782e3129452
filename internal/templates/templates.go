package templates

import (
	"embed"
	"html/template"
	"net/http"
	"sync"

	"tinyduel/internal/logging"
	"tinyduel/internal/storage"
)

//go:embed *.html
var files embed.FS

var pages = template.Must(template.ParseFS(files, "*.html"))

var (
	mu     sync.RWMutex
	commit = "dev"
)

// SetCommit records the build shown in page footers.
func SetCommit(c string) {
	mu.Lock()
	commit = c
	mu.Unlock()
}

func currentCommit() string {
	mu.RLock()
	defer mu.RUnlock()
	return commit
}

type homeData struct {
	Stats  storage.Stats
	Commit string
}

type matchData struct {
	MatchID string
	Commit  string
}

// WriteHomeHTML serves the home page template
func WriteHomeHTML(w http.ResponseWriter, stats storage.Stats) {
	render(w, "home.html", homeData{Stats: stats, Commit: currentCommit()})
}

// WriteMatchHTML serves the match viewer for matchID
func WriteMatchHTML(w http.ResponseWriter, matchID string) {
	render(w, "match.html", matchData{MatchID: matchID, Commit: currentCommit()})
}

func render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logging.Errorf("render %s: %v", name, err)
	}
}
