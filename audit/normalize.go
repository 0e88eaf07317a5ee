package audit

import (
	"sort"
	"strings"
	"time"
)

// NormalMessageType is the "Message Type" value of rows that take part in segmentation.
const NormalMessageType = "Normal Message"

// NormalizeResult is the conversation-grouped output of Normalize.
type NormalizeResult struct {
	Conversations []Conversation
	Rejected      []RejectedRecord
	Duplicates    int
}

// sentKey holds sentAt in UTC without a monotonic reading, so equal instants compare equal as map keys.
type sentKey struct {
	conversationID string
	sentAt         time.Time
}

// Normalize validates, orders, and deduplicates raw transcript rows.
//
// Rows without a conversation id or timestamp are rejected as MALFORMED_RECORD. The rest are stably sorted by
// (conversation id, sent time) and rows sharing that pair collapse to the first one seen in input order.
// Conversations come back ordered by id.
func Normalize(msgs []Message) NormalizeResult {
	var res NormalizeResult

	valid := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		m.ConversationID = strings.TrimSpace(m.ConversationID)
		switch {
		case m.ConversationID == "":
			res.Rejected = append(res.Rejected, RejectedRecord{
				Row: m.Row,
				Err: NewError(ErrorMalformedRecord, "missing conversation id", nil),
			})
			continue
		case m.SentAt.IsZero():
			res.Rejected = append(res.Rejected, RejectedRecord{
				Row:            m.Row,
				ConversationID: m.ConversationID,
				Err:            NewError(ErrorMalformedRecord, "missing message sent time", nil),
			})
			continue
		}
		valid = append(valid, m)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].ConversationID != valid[j].ConversationID {
			return valid[i].ConversationID < valid[j].ConversationID
		}
		return valid[i].SentAt.Before(valid[j].SentAt)
	})

	// After the stable sort, duplicates of a key are adjacent and in input order.
	seen := make(map[sentKey]struct{}, len(valid))
	for _, m := range valid {
		k := sentKey{conversationID: m.ConversationID, sentAt: m.SentAt.UTC().Round(0)}
		if _, ok := seen[k]; ok {
			res.Duplicates++
			continue
		}
		seen[k] = struct{}{}

		n := len(res.Conversations)
		if n == 0 || res.Conversations[n-1].ID != m.ConversationID {
			res.Conversations = append(res.Conversations, Conversation{ID: m.ConversationID})
			n++
		}
		res.Conversations[n-1].Messages = append(res.Conversations[n-1].Messages, m)
	}
	return res
}

// FilterNormal keeps only rows whose message type is NormalMessageType.
func FilterNormal(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.EqualFold(strings.TrimSpace(m.MessageType), NormalMessageType) {
			out = append(out, m)
		}
	}
	return out
}
