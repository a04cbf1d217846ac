package window

import (
	"encoding/binary"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// ErrNoWindow is returned when no focused window can be identified.
var ErrNoWindow = errors.New("no active window found")

type x11Inspector struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

func newX11Inspector() (*x11Inspector, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "connect to X server")
	}

	insp := &x11Inspector{
		conn:  conn,
		root:  xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}

	for _, name := range []string{
		"_NET_ACTIVE_WINDOW",
		"_NET_WM_NAME",
		"WM_NAME",
		"WM_CLASS",
		"UTF8_STRING",
	} {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "intern atom %s", name)
		}
		insp.atoms[name] = reply.Atom
	}

	return insp, nil
}

func (i *x11Inspector) Close() error {
	i.conn.Close()
	return nil
}

// Active resolves the focused window via _NET_ACTIVE_WINDOW, falling
// back to the server input focus walked up to its top-level parent.
func (i *x11Inspector) Active() (Info, error) {
	win := i.activeFromProperty()
	if win == 0 || !i.hasName(win) {
		win = i.activeFromInputFocus()
	}
	if win == 0 {
		return Info{}, ErrNoWindow
	}

	info := Info{
		App:   i.windowClass(win),
		Title: i.windowName(win),
	}
	if info.App == "" && info.Title == "" {
		return Info{}, ErrNoWindow
	}
	if info.App == "" {
		info.App = info.Title
	}

	return info, nil
}

func (i *x11Inspector) property(win xproto.Window, atom, typ xproto.Atom, length uint32) []byte {
	reply, err := xproto.GetProperty(i.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil {
		return nil
	}
	return reply.Value
}

func (i *x11Inspector) activeFromProperty() xproto.Window {
	data := i.property(i.root, i.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

func (i *x11Inspector) activeFromInputFocus() xproto.Window {
	reply, err := xproto.GetInputFocus(i.conn).Reply()
	if err != nil || reply.Focus == 0 || reply.Focus == i.root {
		return 0
	}
	return i.topLevelParent(reply.Focus)
}

func (i *x11Inspector) topLevelParent(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(i.conn, win).Reply()
		if err != nil || reply.Parent == i.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (i *x11Inspector) hasName(win xproto.Window) bool {
	if data := i.property(win, i.atoms["_NET_WM_NAME"], i.atoms["UTF8_STRING"], 1); len(data) > 0 {
		return true
	}
	return len(i.property(win, i.atoms["WM_NAME"], xproto.AtomString, 1)) > 0
}

func (i *x11Inspector) windowName(win xproto.Window) string {
	if data := i.property(win, i.atoms["_NET_WM_NAME"], i.atoms["UTF8_STRING"], 256); len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	if data := i.property(win, i.atoms["WM_NAME"], xproto.AtomString, 256); len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

// windowClass returns the class half of WM_CLASS, the stable
// application identifier (instance\0class\0).
func (i *x11Inspector) windowClass(win xproto.Window) string {
	data := i.property(win, i.atoms["WM_CLASS"], xproto.AtomString, 256)
	if len(data) == 0 {
		return ""
	}

	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}
