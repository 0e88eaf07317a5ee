package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// BotIdentity is the reserved agent identity for automated bot messages.
const BotIdentity = "BOT"

// DefaultLookahead is how many leading messages of the following segment are spliced onto a bot segment.
const DefaultLookahead = 3

// HighRelevanceThreshold is the relevance score a policy must exceed to be listed as high relevance.
const HighRelevanceThreshold = 0.9

// Role is the normalized (trimmed, lower-cased) sender tag of a transcript row.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleConsumer Role = "consumer"
	RoleBot      Role = "bot"
)

// ParseRole normalizes a raw "Sent By" value. Unknown values are preserved.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Label is the capitalized tag used when rendering a line, e.g. "Consumer".
func (r Role) Label() string {
	s := string(r)
	if s == "" {
		return ""
	}
	r0, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r0)) + s[size:]
}

// IsAgentOrBot reports whether a row with this role can change segment ownership.
func (r Role) IsAgentOrBot() bool {
	return r == RoleAgent || r == RoleBot
}

// Message is one transcript row.
type Message struct {
	ConversationID string
	SentAt         time.Time
	Sender         Role
	Text           string
	Skill          string
	AgentName      string
	MessageType    string

	// Row is the 1-based data row in the source file, used when reporting rejected records.
	Row int
}

// Identity returns the agent identity that owns the row: the agent name for agents, BotIdentity for bots.
func (m Message) Identity() string {
	if m.Sender == RoleBot {
		return BotIdentity
	}
	return m.AgentName
}

// Line is one rendered segment line tagged with the sender role of the original row.
type Line struct {
	Role Role
	Text string
}

func (l Line) String() string {
	return fmt.Sprintf("%s: %s", l.Role.Label(), l.Text)
}

// Conversation is the normalized, time-ordered stream of one conversation.
type Conversation struct {
	ID       string
	Messages []Message
}

// Segment is a maximal run of consecutive lines owned by one agent identity.
type Segment struct {
	ConversationID string
	AgentIdentity  string

	// LastSkill is the skill of the last Agent/Bot row seen while this segment was open.
	LastSkill string

	Lines []Line

	// rendered holds lines read back from an artifact, where role structure is gone.
	rendered []string
}

// Rendered returns the segment's lines as "<Role>: <text>" strings.
func (s Segment) Rendered() []string {
	if len(s.Lines) == 0 && len(s.rendered) > 0 {
		return append([]string(nil), s.rendered...)
	}
	out := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, l.String())
	}
	return out
}

// Text joins the rendered lines with newlines, the form persisted between stages.
func (s Segment) Text() string {
	return strings.Join(s.Rendered(), "\n")
}

// HasConsumer reports whether any line starts with "Consumer:".
func (s Segment) HasConsumer() bool {
	prefix := RoleConsumer.Label() + ":"
	for _, line := range s.Rendered() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// IsBot reports whether the bot owns the segment.
func (s Segment) IsBot() bool {
	return s.AgentIdentity == BotIdentity
}

// ReviewableUnit is a bot segment plus a bounded lookahead into the segment that took over from it.
type ReviewableUnit struct {
	ConversationID string
	UnitNumber     int
	AgentIdentity  string
	LastSkill      string

	// HandoffTo is the identity of the segment the lookahead was taken from.
	HandoffTo string

	Messages []string
}

// UnitID identifies a unit within a batch; a conversation may produce several.
func (u ReviewableUnit) UnitID() string {
	return fmt.Sprintf("%s#%d", u.ConversationID, u.UnitNumber)
}

// Text joins the unit's messages with newlines.
func (u ReviewableUnit) Text() string {
	return strings.Join(u.Messages, "\n")
}

// PolicyCandidate is one retrieved policy excerpt.
type PolicyCandidate struct {
	Title          string     `json:"title"`
	RelevanceScore float64    `json:"relevance_score"`
	Excerpt        PolicyText `json:"excerpt,omitempty"`
	Exceptions     PolicyText `json:"exceptions,omitempty"`
}

// PolicyText is a free-text policy field. Answers sometimes carry a list or an object here: a list of strings is
// joined with "; " and any other value keeps its compact JSON text.
type PolicyText string

func (p *PolicyText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = PolicyText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*p = PolicyText(strings.Join(list, "; "))
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*p = PolicyText(buf.String())
	return nil
}

// PolicySet is the JSON payload expected inside a retrieval answer.
type PolicySet struct {
	Policies []PolicyCandidate `json:"policies"`

	// Raw is the extracted answer object, indented, as handed to the judge. It keeps fields the typed view drops.
	Raw json.RawMessage `json:"-"`
}

// HighRelevanceTitles returns titles whose relevance score exceeds threshold, in retrieval order.
func (p PolicySet) HighRelevanceTitles(threshold float64) []string {
	var out []string
	for _, c := range p.Policies {
		if c.RelevanceScore > threshold {
			out = append(out, c.Title)
		}
	}
	return out
}

// ViolatedPolicy is one entry of a verdict's violation list.
type ViolatedPolicy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Verdict is the parsed compliance judgment for one unit.
type Verdict struct {
	ConversationID   string           `json:"conversation_id,omitempty"`
	PolicyViolated   bool             `json:"policy_violated"`
	PoliciesViolated []ViolatedPolicy `json:"policies_violated"`
	ViolationSummary string           `json:"violation_summary"`
}

// RetrievalResult is a unit enriched with the retrieval service's answer, or the reason retrieval failed.
type RetrievalResult struct {
	Unit   ReviewableUnit
	Answer string
	Error  string
}

// JudgedUnit is one entry of the judged output artifact. Output holds either a Verdict or a failure object.
type JudgedUnit struct {
	ConversationID string          `json:"conversation_id"`
	UnitNumber     int             `json:"unit"`
	Output         json.RawMessage `json:"output"`
}

// FailureOutput is recorded in place of a verdict when a unit could not be judged.
type FailureOutput struct {
	Kind  ErrorKind `json:"kind,omitempty"`
	Error string    `json:"error"`
	Raw   string    `json:"raw,omitempty"`
}
