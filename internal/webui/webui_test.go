package webui

import (
	"io"
	"io/fs"
	"strings"
	"testing"
)

func TestStaticFSContainsPage(t *testing.T) {
	t.Parallel()

	static := StaticFS()
	for name, want := range map[string]string{
		"index.html": "Text Summarization with BART",
		"app.js":     "/api/v1/summarize",
		"style.css":  ".banner",
	} {
		f, err := static.Open(name)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(raw), want) {
			t.Fatalf("%s does not contain %q", name, want)
		}
	}
}

func TestPageReportsTruncationAndBackend(t *testing.T) {
	t.Parallel()

	for name, wants := range map[string][]string{
		"index.html": {`id="summary-note"`, `id="model-info"`},
		"app.js":     {"body.truncated", "opts.backend", `"summary-note"`},
	} {
		raw, err := fs.ReadFile(Files, name)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		for _, want := range wants {
			if !strings.Contains(string(raw), want) {
				t.Fatalf("%s does not contain %q", name, want)
			}
		}
	}
}

func TestFilesServedAtRoot(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(Files, ".")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{"index.html", "app.js", "style.css"} {
		if !names[want] {
			t.Fatalf("Files is missing %s (have %v)", want, names)
		}
	}
}
