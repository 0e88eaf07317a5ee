package audit

import "strings"

// rolePrefixes are the line prefixes ExtractMessages recognizes, in the order they are tried.
var rolePrefixes = []string{
	RoleAgent.Label() + ":",
	RoleConsumer.Label() + ":",
	RoleBot.Label() + ":",
}

// ExtractMessages reads up to max messages back out of a rendered segment text.
//
// Grammar, one message per recognized line start:
//
//	text     := preamble message*
//	message  := prefix content ("\n" continuation)*
//	prefix   := "Agent:" | "Consumer:" | "Bot:"   (at line start, leading blanks ignored)
//
// A continuation is any line that does not start with a recognized prefix, including lines with unknown prefixes
// such as "System:". The preamble before the first prefix is dropped. Content is trimmed; a message whose content
// is empty is skipped. Each message is returned as "<prefix> <content>".
func ExtractMessages(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	var (
		out     []string
		prefix  string
		content []string
		open    bool
	)

	flush := func() bool {
		if !open {
			return false
		}
		open = false
		body := strings.TrimSpace(strings.Join(content, "\n"))
		if body == "" {
			return false
		}
		out = append(out, prefix+" "+body)
		return len(out) >= max
	}

	for _, line := range strings.Split(text, "\n") {
		p, rest, ok := cutRolePrefix(line)
		if !ok {
			if open {
				content = append(content, line)
			}
			continue
		}
		if flush() {
			return out
		}
		prefix = p
		content = []string{rest}
		open = true
	}
	flush()
	return out
}

func cutRolePrefix(line string) (prefix, rest string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t\r")
	for _, p := range rolePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return p, trimmed[len(p):], true
		}
	}
	return "", "", false
}
