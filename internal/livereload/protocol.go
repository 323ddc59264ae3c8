// Package livereload implements the browser side of the watch loop: a
// LiveReload protocol 7 server that keeps a registry of connected browsers
// and broadcasts reload commands, and a coalescer that folds bursts of
// changes into a single reload.
package livereload

// ProtocolOfficial7 identifies version 7 of the LiveReload protocol.
const ProtocolOfficial7 = "http://livereload.com/protocols/official-7"

// Command names exchanged with browsers.
const (
	CommandHello  = "hello"
	CommandReload = "reload"
	CommandAlert  = "alert"
	CommandInfo   = "info"
)

// HelloMessage opens a session. Browsers send it first; the server answers
// with the protocols it speaks.
type HelloMessage struct {
	Command    string   `json:"command"`
	Protocols  []string `json:"protocols"`
	ServerName string   `json:"serverName,omitempty"`
}

// ReloadMessage asks a browser to reload path. With LiveCSS and LiveImg set
// the browser swaps stylesheets and images in place instead of reloading the
// page.
type ReloadMessage struct {
	Command string `json:"command"`
	Path    string `json:"path"`
	LiveCSS bool   `json:"liveCSS"`
	LiveImg bool   `json:"liveImg"`
}

// AlertMessage shows a message in the browser.
type AlertMessage struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

// clientMessage is the envelope of anything a browser sends.
type clientMessage struct {
	Command   string   `json:"command"`
	Protocols []string `json:"protocols,omitempty"`
	URL       string   `json:"url,omitempty"`
}

func newReload(path string) ReloadMessage {
	return ReloadMessage{Command: CommandReload, Path: path, LiveCSS: true, LiveImg: true}
}
