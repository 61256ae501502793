package nixapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const logPrefix = "@nix "

// Activity and result type codes of the internal-json log format.
const (
	actRealise     = 102
	actCopyPaths   = 103
	actBuilds      = 104
	actBuild       = 105
	actVerifyPaths = 107
	actSubstitute  = 108

	resSetPhase = 104
	resProgress = 105
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

type logEvent struct {
	Action string            `json:"action"`
	ID     uint64            `json:"id"`
	Level  int               `json:"level"`
	Type   int               `json:"type"`
	Text   string            `json:"text"`
	Msg    string            `json:"msg"`
	Fields []json.RawMessage `json:"fields"`
}

type counter struct {
	done, expected int64
}

// logDecoder consumes stderr lines of a Nix command run with
// --log-format internal-json. Plain lines are kept as messages.
type logDecoder struct {
	mu         sync.Mutex
	activities map[uint64]int
	counters   map[int]*counter
	errors     []string
	messages   []string
	lastText   string

	progress ProgressFunc
	// base and span map aggregate completion into the caller's range.
	base, span float64
	last       float64
}

func newLogDecoder(progress ProgressFunc, base, span float64) *logDecoder {
	return &logDecoder{
		activities: make(map[uint64]int),
		counters:   make(map[int]*counter),
		progress:   progress,
		base:       base,
		span:       span,
	}
}

// Line handles one line of stderr.
func (d *logDecoder) Line(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !strings.HasPrefix(line, logPrefix) {
		if text := cleanText(line); text != "" {
			d.messages = append(d.messages, text)
			if strings.HasPrefix(text, "error:") {
				d.errors = append(d.errors, text)
			}
		}
		return
	}

	var ev logEvent
	if err := json.Unmarshal([]byte(line[len(logPrefix):]), &ev); err != nil {
		return
	}

	switch ev.Action {
	case "msg":
		text := cleanText(ev.Msg)
		if text == "" {
			return
		}
		d.messages = append(d.messages, text)
		if ev.Level == 0 {
			d.errors = append(d.errors, text)
		}
	case "start":
		d.activities[ev.ID] = ev.Type
		if ev.Text != "" && (ev.Type == actBuild || ev.Type == actSubstitute || ev.Type == actRealise) {
			d.lastText = cleanText(ev.Text)
			d.emit()
		}
	case "stop":
		delete(d.activities, ev.ID)
	case "result":
		typ, known := d.activities[ev.ID]
		if !known {
			return
		}
		switch ev.Type {
		case resProgress:
			if typ != actBuilds && typ != actCopyPaths && typ != actVerifyPaths {
				return
			}
			if len(ev.Fields) < 2 {
				return
			}
			c := d.counter(typ)
			c.done = fieldInt(ev.Fields[0])
			c.expected = fieldInt(ev.Fields[1])
			d.emit()
		case resSetPhase:
			if len(ev.Fields) > 0 {
				var phase string
				if json.Unmarshal(ev.Fields[0], &phase) == nil && phase != "" {
					d.lastText = "running " + phase
					d.emit()
				}
			}
		}
	}
}

func (d *logDecoder) counter(typ int) *counter {
	c, ok := d.counters[typ]
	if !ok {
		c = &counter{}
		d.counters[typ] = c
	}
	return c
}

// emit reports aggregate progress. Callers hold d.mu.
func (d *logDecoder) emit() {
	if d.progress == nil {
		return
	}
	var done, expected int64
	for _, c := range d.counters {
		done += c.done
		expected += c.expected
	}
	ratio := 0.0
	if expected > 0 {
		ratio = float64(done) / float64(expected)
		if ratio > 1 {
			ratio = 1
		}
	}
	fraction := d.base + d.span*ratio
	if fraction < d.last {
		fraction = d.last
	}
	d.last = fraction

	msg := d.lastText
	if expected > 0 {
		msg = fmt.Sprintf("%d/%d paths", done, expected)
		if d.lastText != "" {
			msg += ", " + d.lastText
		}
	}
	d.progress(msg, fraction)
}

// ErrorText returns the error messages Nix reported, or "".
func (d *logDecoder) ErrorText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.errors, "\n")
}

// Messages returns every plain message seen, in order.
func (d *logDecoder) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

func cleanText(s string) string {
	return strings.TrimSpace(ansiEscape.ReplaceAllString(s, ""))
}

func fieldInt(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}
