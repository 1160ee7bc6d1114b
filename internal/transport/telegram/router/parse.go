package router

import "strings"

// tokenize splits command text on whitespace, keeping quoted runs together.
// A backslash escapes the next byte.
//
//	/cmd a "b c" 'd e'
func tokenize(s string) []string {
	var (
		out  []string
		buf  strings.Builder
		have bool
		q    byte
	)
	flush := func() {
		if have {
			out = append(out, buf.String())
			buf.Reset()
			have = false
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s):
			i++
			buf.WriteByte(s[i])
			have = true
		case q != 0:
			if ch == q {
				q = 0
				continue
			}
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			q = ch
			have = true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
			have = true
		}
	}
	flush()
	return out
}

// parsed is a command line split into its parts.
type parsed struct {
	Name    string // lower-cased, without "/" and "@bot"
	Mention string // bot username after "@", if any
	Args    []string
}

// parseCommand reports ok=false for text that is not a bot command.
func parseCommand(text string) (parsed, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return parsed{}, false
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return parsed{}, false
	}
	word := strings.TrimPrefix(parts[0], "/")
	var p parsed
	if i := strings.IndexByte(word, '@'); i >= 0 {
		p.Mention = word[i+1:]
		word = word[:i]
	}
	if word == "" {
		return parsed{}, false
	}
	p.Name = strings.ToLower(word)
	p.Args = parts[1:]
	return p, true
}
