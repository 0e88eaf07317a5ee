package audit

// segmenterState is the two-state machine driving Segment.
type segmenterState int

const (
	noAgentYet segmenterState = iota
	inSegment
)

// SegmentConversation partitions one conversation's ordered rows into segments owned by a single agent identity.
//
// Only Agent and Bot rows change ownership. A row whose identity matches the open segment updates the segment's
// last skill; a different identity closes the open segment and starts a new one. Consumer and other rows are
// appended to whatever segment is open. Rows that arrive before the first Agent/Bot row are held back and become
// the head of the first segment; if no Agent/Bot row ever arrives the conversation yields no segments.
//
// Every row lands in exactly one segment, so concatenating the result reproduces the input stream.
func SegmentConversation(conversationID string, msgs []Message) []Segment {
	var (
		segments  []Segment
		state     = noAgentYet
		current   Segment
		pending   []Line
		lastSkill string
	)

	closeCurrent := func() {
		if len(current.Lines) == 0 {
			return
		}
		current.LastSkill = lastSkill
		segments = append(segments, current)
	}

	for _, m := range msgs {
		line := Line{Role: m.Sender, Text: m.Text}

		if m.Sender.IsAgentOrBot() {
			identity := m.Identity()
			switch state {
			case noAgentYet:
				state = inSegment
				current = Segment{
					ConversationID: conversationID,
					AgentIdentity:  identity,
					Lines:          pending,
				}
				pending = nil
			case inSegment:
				if identity != current.AgentIdentity {
					closeCurrent()
					current = Segment{
						ConversationID: conversationID,
						AgentIdentity:  identity,
					}
				}
			}
			lastSkill = m.Skill
		}

		if state == noAgentYet {
			pending = append(pending, line)
			continue
		}
		current.Lines = append(current.Lines, line)
	}

	if state == inSegment {
		closeCurrent()
	}
	return segments
}

// RetainWithConsumer drops segments that contain no "Consumer:" line.
func RetainWithConsumer(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.HasConsumer() {
			out = append(out, s)
		}
	}
	return out
}

// SegmentConversations segments every normalized conversation and applies the consumer-content filter.
// Only normal-message rows take part.
func SegmentConversations(convs []Conversation) []Segment {
	var out []Segment
	for _, c := range convs {
		segs := SegmentConversation(c.ID, FilterNormal(c.Messages))
		out = append(out, RetainWithConsumer(segs)...)
	}
	return out
}
