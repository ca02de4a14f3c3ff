package shell

import "strings"

// Dialect selects the quoting rules of a shell family.
type Dialect int

const (
	// POSIX quotes every token with single quotes (sh, bash, zsh).
	POSIX Dialect = iota
	// Windows quotes every token with double quotes and defeats %VAR% expansion (cmd.exe).
	Windows
)

func (d Dialect) String() string {
	switch d {
	case POSIX:
		return "posix"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// Escape quotes token so that the shell of dialect d reads it back as one word.
// It never fails; any byte sequence is accepted.
func Escape(token string, d Dialect) string {
	if d == Windows {
		return escapeWindows(token)
	}
	return escapePOSIX(token)
}

// EscapeAll escapes every token independently, preserving order.
func EscapeAll(tokens []string, d Dialect) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = Escape(t, d)
	}
	return out
}

// Join escapes tokens and joins them with a single space.
func Join(tokens []string, d Dialect) string {
	return strings.Join(EscapeAll(tokens, d), " ")
}

func escapePOSIX(token string) string {
	return "'" + strings.ReplaceAll(token, "'", `'\''`) + "'"
}

// escapeWindows splits the token on % and ". Literal runs are double quoted,
// % becomes ^% and " becomes \".
func escapeWindows(token string) string {
	if token == "" {
		return `""`
	}
	var b strings.Builder
	start := 0
	flush := func(end int) {
		if end > start {
			b.WriteByte('"')
			b.WriteString(token[start:end])
			b.WriteByte('"')
		}
	}
	for i := 0; i < len(token); i++ {
		switch token[i] {
		case '%':
			flush(i)
			b.WriteString("^%")
			start = i + 1
		case '"':
			flush(i)
			b.WriteString(`\"`)
			start = i + 1
		}
	}
	flush(len(token))
	return b.String()
}
