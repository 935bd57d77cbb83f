// Package manager implements the Manager service (C6) and the Channel
// multiplex (C7): the long-lived registry of live outbound connections,
// Launch/Connect with inline auth proxying, Info/List/Kill, and raw
// channel tunneling, directly grounded on
// distant-net/src/manager/client.rs from the original implementation.
package manager

import (
	"fmt"
	"strconv"
	"strings"
)

// Destination is a structured URI: scheme://[user[:pass]@]host[:port][/path].
// Equality is field-wise.
type Destination struct {
	Scheme string
	User   string
	Pass   string
	Host   string
	Port   uint16
	Path   string
}

// ParseDestination parses the canonical destination string form.
func ParseDestination(s string) (Destination, error) {
	var d Destination

	schemeRest := strings.SplitN(s, "://", 2)
	if len(schemeRest) != 2 {
		return d, fmt.Errorf("manager: destination %q missing scheme://", s)
	}
	d.Scheme, s = schemeRest[0], schemeRest[1]

	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		d.Path = s[slash:]
		s = s[:slash]
	}

	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		userinfo := s[:at]
		s = s[at+1:]
		if colon := strings.IndexByte(userinfo, ':'); colon >= 0 {
			d.User, d.Pass = userinfo[:colon], userinfo[colon+1:]
		} else {
			d.User = userinfo
		}
	}

	if colon := strings.LastIndexByte(s, ':'); colon >= 0 {
		port, err := strconv.ParseUint(s[colon+1:], 10, 16)
		if err != nil {
			return d, fmt.Errorf("manager: destination %q has invalid port: %w", s, err)
		}
		d.Port = uint16(port)
		d.Host = s[:colon]
	} else {
		d.Host = s
	}

	return d, nil
}

// String renders the canonical form.
func (d Destination) String() string {
	var b strings.Builder
	b.WriteString(d.Scheme)
	b.WriteString("://")
	if d.User != "" {
		b.WriteString(d.User)
		if d.Pass != "" {
			b.WriteByte(':')
			b.WriteString(d.Pass)
		}
		b.WriteByte('@')
	}
	b.WriteString(d.Host)
	if d.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(d.Port)))
	}
	b.WriteString(d.Path)
	return b.String()
}

// kv is one Map entry; Map keeps them in insertion order.
type kv struct{ key, value string }

// Map is an ordered sequence of key=value pairs preserving insertion
// order. Duplicate keys are allowed; the last one wins on lookup.
type Map struct {
	pairs []kv
}

// ParseMap parses "k1=v1,k2=v2" with backslash-escapes for ',' and '='.
func ParseMap(s string) (Map, error) {
	var m Map
	if s == "" {
		return m, nil
	}

	// entry keeps the unescaped text and the index of its first
	// unescaped '=' (-1 if none), so an escaped '=' never splits.
	type entry struct {
		text string
		eq   int
	}
	var cur strings.Builder
	var pending []entry
	eq := -1
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '=' && eq < 0:
			eq = cur.Len()
			cur.WriteByte(c)
		case c == ',':
			pending = append(pending, entry{cur.String(), eq})
			cur.Reset()
			eq = -1
		default:
			cur.WriteByte(c)
		}
	}
	pending = append(pending, entry{cur.String(), eq})

	for _, e := range pending {
		if e.eq < 0 {
			return Map{}, fmt.Errorf("manager: map entry %q missing '='", e.text)
		}
		m.pairs = append(m.pairs, kv{key: e.text[:e.eq], value: e.text[e.eq+1:]})
	}
	return m, nil
}

func escapeMapComponent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `,`, `\,`)
	s = strings.ReplaceAll(s, `=`, `\=`)
	return s
}

// String renders the canonical "k1=v1,k2=v2" form, preserving insertion
// order (including duplicate keys).
func (m Map) String() string {
	parts := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		parts[i] = escapeMapComponent(p.key) + "=" + escapeMapComponent(p.value)
	}
	return strings.Join(parts, ",")
}

// Get returns the value of the last occurrence of key.
func (m Map) Get(key string) (string, bool) {
	for i := len(m.pairs) - 1; i >= 0; i-- {
		if m.pairs[i].key == key {
			return m.pairs[i].value, true
		}
	}
	return "", false
}

// Set appends a new key=value pair (shadowing any earlier value of key
// on subsequent Get calls, per the "last wins" rule).
func (m *Map) Set(key, value string) {
	m.pairs = append(m.pairs, kv{key: key, value: value})
}

// Len returns the number of pairs, including shadowed duplicates.
func (m Map) Len() int { return len(m.pairs) }

// ConnectionInfo describes one registered connection.
type ConnectionInfo struct {
	ID          uint64
	Destination Destination
	Options     Map
}

// ConnectionList is an insertion-ordered ConnectionId -> Destination
// mapping, as returned by the manager's List request.
type ConnectionList struct {
	ids   []uint64
	byID  map[uint64]Destination
}

// NewConnectionList returns an empty list.
func NewConnectionList() *ConnectionList {
	return &ConnectionList{byID: make(map[uint64]Destination)}
}

func (l *ConnectionList) add(id uint64, dest Destination) {
	if _, exists := l.byID[id]; !exists {
		l.ids = append(l.ids, id)
	}
	l.byID[id] = dest
}

// Entries returns the list's entries in insertion order.
func (l *ConnectionList) Entries() []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, ConnectionInfo{ID: id, Destination: l.byID[id]})
	}
	return out
}

// Len returns the number of entries.
func (l *ConnectionList) Len() int { return len(l.ids) }

// Capability is a named, boolean-grained feature a server advertises.
type Capability string

const (
	CapExec           Capability = "exec"
	CapFileRead       Capability = "file_read"
	CapFileWrite      Capability = "file_write"
	CapSetPermissions Capability = "set_permissions"
	CapSearch         Capability = "search"
	CapCancelSearch   Capability = "cancel_search"
	CapSystemInfo     Capability = "system_info"
)

// Capabilities is a set of supported capability kinds; a capability is
// either fully supported or absent, never partial.
type Capabilities map[Capability]struct{}

// AllCapabilities returns every capability this repository knows about.
func AllCapabilities() Capabilities {
	return Capabilities{
		CapExec:           {},
		CapFileRead:       {},
		CapFileWrite:      {},
		CapSetPermissions: {},
		CapSearch:         {},
		CapCancelSearch:   {},
		CapSystemInfo:     {},
	}
}

// Has reports whether c is present.
func (caps Capabilities) Has(c Capability) bool {
	_, ok := caps[c]
	return ok
}

// Without returns a copy of caps with each of remove absent. Used by
// version() to advertise Search/CancelSearch as never-supported, mirroring
// the original implementation's `Capabilities::all().take(...)` calls.
func (caps Capabilities) Without(remove ...Capability) Capabilities {
	out := make(Capabilities, len(caps))
	for k := range caps {
		out[k] = struct{}{}
	}
	for _, r := range remove {
		delete(out, r)
	}
	return out
}

// List returns the set's members as a slice, useful for wire encoding.
func (caps Capabilities) List() []Capability {
	out := make([]Capability, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	return out
}

// CapabilitiesFromList builds a set from a decoded slice.
func CapabilitiesFromList(list []Capability) Capabilities {
	out := make(Capabilities, len(list))
	for _, c := range list {
		out[c] = struct{}{}
	}
	return out
}
