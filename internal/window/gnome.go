package window

import (
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// gnomeInspector asks gnome-shell for the focused window over D-Bus.
// It only works when the shell allows Eval (unsafe mode or older GNOME),
// which is why it is the fallback path, not the primary one.
type gnomeInspector struct{}

func newGnomeInspector() *gnomeInspector { return &gnomeInspector{} }

func (g *gnomeInspector) Close() error { return nil }

const gnomeFocusScript = `
	let fw = global.display.get_focus_window();
	fw ? JSON.stringify({app: fw.get_wm_class() || '', title: fw.get_title() || ''}) : 'null';
`

func (g *gnomeInspector) Active() (Info, error) {
	out, err := exec.Command("gdbus", "call", "--session",
		"--dest", "org.gnome.Shell",
		"--object-path", "/org/gnome/Shell",
		"--method", "org.gnome.Shell.Eval",
		gnomeFocusScript).Output()
	if err != nil {
		return Info{}, errors.Wrap(err, "gnome-shell eval")
	}

	raw := string(out)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Info{}, ErrNoWindow
	}

	payload := strings.NewReplacer(`\"`, `"`, `\'`, `'`).Replace(raw[start : end+1])

	var parsed struct {
		App   string `json:"app"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return Info{}, errors.Wrap(err, "parse gnome-shell reply")
	}
	if parsed.App == "" && parsed.Title == "" {
		return Info{}, ErrNoWindow
	}
	if parsed.App == "" {
		parsed.App = parsed.Title
	}

	return Info{App: parsed.App, Title: parsed.Title}, nil
}
