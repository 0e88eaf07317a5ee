package audit

// Stitch turns one conversation's retained segments into reviewable units.
//
// Every bot segment directly followed by a non-bot segment yields one unit: the bot segment's lines plus up to
// lookahead messages extracted from the following segment's text. A conversation made of a single bot segment
// yields nothing. lookahead <= 0 means DefaultLookahead.
func Stitch(segments []Segment, lookahead int) []ReviewableUnit {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	if len(segments) == 1 && segments[0].IsBot() {
		return nil
	}

	var units []ReviewableUnit
	for i := 0; i+1 < len(segments); i++ {
		cur, next := segments[i], segments[i+1]
		if !cur.IsBot() || next.IsBot() {
			continue
		}

		msgs := cur.Rendered()
		msgs = append(msgs, ExtractMessages(next.Text(), lookahead)...)

		units = append(units, ReviewableUnit{
			ConversationID: cur.ConversationID,
			UnitNumber:     len(units) + 1,
			AgentIdentity:  cur.AgentIdentity,
			LastSkill:      cur.LastSkill,
			HandoffTo:      next.AgentIdentity,
			Messages:       msgs,
		})
	}
	return units
}

// StitchAll groups a flat segment list by conversation, keeping first-seen order, and stitches each group.
func StitchAll(segments []Segment, lookahead int) []ReviewableUnit {
	var order []string
	groups := make(map[string][]Segment)
	for _, s := range segments {
		if _, ok := groups[s.ConversationID]; !ok {
			order = append(order, s.ConversationID)
		}
		groups[s.ConversationID] = append(groups[s.ConversationID], s)
	}

	var units []ReviewableUnit
	for _, id := range order {
		units = append(units, Stitch(groups[id], lookahead)...)
	}
	return units
}
