package retrieval

import (
	"regexp"
	"strings"
)

const policyQueryTemplate = `Based on the ingested document, return a JSON object summarizing all relevant policies, instructions, or rules that apply to this conversation.

Guidelines:
- *Customer Intent Matching:* Whether the policy addresses the customer's specific inquiry, complaint, or issue.
- *Keyword Overlap:* Presence of relevant terms (sickness, pain, hospitals, symptoms, doctor, visa processing, service fees, salaries, etc.).
- *Bot Response Appropriateness:* How well the policy supports or validates the customer service responses provided.
- *Communication Style:* Policy alignment with professional WhatsApp standards, including the use of emojis (indicated by :: like :happy:), jargon, or informal language.
- *Process Relevance:* How well the policy covers relevant processes mentioned in the conversation.
- *Exclusion Criterion*: If the policy is primarily about the procedures for filing complaints or making a chat transfer, assign a relevance score of 0.00.
- If no policies are relevant, return a JSON object containing an empty list.
# Output Requirements and schema:
Return {"policies": [...]}. For each selected policy:
- title: Use the policy's official title.
- relevance_score: The calculated score (float between 0.00 and 1.0, 1.0 being the highest).
- excerpt: Extract the most relevant portion explaining the core policy rule or guideline.
- exceptions: If the policy has exceptions or special cases, include them in the output.

Respond ONLY with a valid JSON object. Do not include any other text, explanation, or example.

Here is the input conversation. Apply the above instructions accordingly. Do not include references.
`

// BuildQuery embeds a unit's rendered conversation in the policy-relevance instructions.
func BuildQuery(chat string) string {
	return policyQueryTemplate + chat + "\n"
}

var referenceMarker = regexp.MustCompile(`\[[a-f0-9]+\]`)

// CleanAnswer removes bracketed hex reference markers such as "[6a9e83b]" that the RAG service appends to
// cited sentences.
func CleanAnswer(s string) string {
	return strings.TrimSpace(referenceMarker.ReplaceAllString(s, ""))
}
