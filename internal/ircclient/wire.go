// Package ircclient implements a narrow IRCv3 client sufficient to join
// and part Twitch chat rooms and stream their messages. There is no
// general-purpose IRC library in the dependency set this module draws
// on, so the wire format (tags, prefix, command, params) is parsed and
// re-serialized by hand here.
package ircclient

import (
	"sort"
	"strings"
)

// Message is one parsed IRC line.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
	// Raw is the original line this message was parsed from, if any.
	Raw string
}

// ChannelLogin returns the channel this message concerns, if any. Most
// Twitch IRC commands carry it as the first '#'-prefixed param.
func (m Message) ChannelLogin() (string, bool) {
	for _, p := range m.Params {
		if strings.HasPrefix(p, "#") {
			return strings.TrimPrefix(p, "#"), true
		}
	}
	return "", false
}

// Tag returns a tag value and whether it was present.
func (m Message) Tag(key string) (string, bool) {
	v, ok := m.Tags[key]
	return v, ok
}

// ParseMessage parses a single raw IRC line (without trailing CRLF).
func ParseMessage(line string) (Message, bool) {
	raw := line
	msg := Message{Raw: raw}

	if line == "" {
		return Message{}, false
	}

	if strings.HasPrefix(line, "@") {
		end := strings.IndexByte(line, ' ')
		if end < 0 {
			return Message{}, false
		}
		msg.Tags = parseTags(line[1:end])
		line = strings.TrimLeft(line[end+1:], " ")
	}

	if strings.HasPrefix(line, ":") {
		end := strings.IndexByte(line, ' ')
		if end < 0 {
			return Message{}, false
		}
		msg.Prefix = line[1:end]
		line = strings.TrimLeft(line[end+1:], " ")
	}

	trailing := ""
	if idx := strings.Index(line, " :"); idx >= 0 {
		trailing = line[idx+2:]
		line = line[:idx]
	} else if strings.HasPrefix(line, ":") {
		trailing = line[1:]
		line = ""
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, false
	}
	msg.Command = strings.ToUpper(fields[0])
	msg.Params = fields[1:]
	if trailing != "" || strings.HasSuffix(strings.TrimRight(raw, "\r\n"), " :") {
		msg.Params = append(msg.Params, trailing)
	}

	return msg, true
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key := kv[0]
		val := ""
		if len(kv) == 2 {
			val = unescapeTagValue(kv[1])
		}
		tags[key] = val
	}
	return tags
}

var tagEscapeReplacer = strings.NewReplacer(
	`\:`, ";",
	`\s`, " ",
	`\\`, `\`,
	`\r`, "\r",
	`\n`, "\n",
)

func unescapeTagValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return tagEscapeReplacer.Replace(v)
}

// AsRawIRC re-serializes a message back into wire form, used when
// persisting the original line a caller only has as a structured
// Message (e.g. synthetic NOTICEs built during replay export).
func (m Message) AsRawIRC() string {
	if m.Raw != "" {
		return m.Raw
	}

	var b strings.Builder
	if len(m.Tags) > 0 {
		b.WriteByte('@')
		keys := make([]string, 0, len(m.Tags))
		for k := range m.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(escapeTagValue(m.Tags[k]))
		}
		b.WriteByte(' ')
	}
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (strings.Contains(p, " ") || strings.HasPrefix(p, ":") || p == "") {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

var tagUnescapeReplacer = strings.NewReplacer(
	"\\", `\\`,
	";", `\:`,
	" ", `\s`,
	"\r", `\r`,
	"\n", `\n`,
)

func escapeTagValue(v string) string {
	return tagUnescapeReplacer.Replace(v)
}
