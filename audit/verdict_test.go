package audit

import (
	"strings"
	"testing"
)

func TestExtractVerdict_FencedAndWrapped(t *testing.T) {
	t.Parallel()

	raw := "Sure.\n```json\n{\"policy_violated\": true, \"policies_violated\": [{\"title\": \"Clinic links\", \"description\": \"too early\"}], \"violation_summary\": \"The bot provided clinic links prematurely.\"}\n```"
	v, pf := ExtractVerdict(raw)
	if pf != nil {
		t.Fatalf("ExtractVerdict: %+v", pf)
	}
	if !v.PolicyViolated || len(v.PoliciesViolated) != 1 || v.PoliciesViolated[0].Title != "Clinic links" {
		t.Fatalf("verdict=%+v", v)
	}
}

func TestExtractVerdict_MalformedKeepsRaw(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"```json\n{not valid json\n```",
		"I cannot help with that.",
		"null",
		"",
	} {
		_, pf := ExtractVerdict(raw)
		if pf == nil {
			t.Fatalf("ExtractVerdict(%q): expected parse failure", raw)
		}
		if pf.Raw != raw {
			t.Fatalf("Raw=%q, want %q", pf.Raw, raw)
		}
		if !strings.HasPrefix(pf.Message, "Error parsing API response") {
			t.Fatalf("Message=%q", pf.Message)
		}
	}
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()

	answer := "```json\n{\"policies\": [{\"title\": \"Sick maid\", \"relevance_score\": 0.95, \"excerpt\": \"ask\", \"exceptions\": \"speak to maid first\"}, {\"title\": \"Fees\", \"relevance_score\": 0.4}]}\n```"
	set, err := ParsePolicies(answer)
	if err != nil {
		t.Fatalf("ParsePolicies: %v", err)
	}
	if len(set.Policies) != 2 || set.Policies[0].Exceptions != "speak to maid first" {
		t.Fatalf("Policies=%+v", set.Policies)
	}
	if got := set.HighRelevanceTitles(HighRelevanceThreshold); len(got) != 1 || got[0] != "Sick maid" {
		t.Fatalf("HighRelevanceTitles=%v", got)
	}
	if !strings.Contains(string(set.Raw), "\n  \"policies\"") {
		t.Fatalf("Raw not indented: %s", set.Raw)
	}
}

func TestParsePolicies_LenientTypedView(t *testing.T) {
	t.Parallel()

	set, err := ParsePolicies(`{"policies": [{"title": "X", "relevance_score": "high"}]}`)
	if err != nil {
		t.Fatalf("ParsePolicies: %v", err)
	}
	if len(set.Policies) != 0 || len(set.Raw) == 0 {
		t.Fatalf("set=%+v", set)
	}
}

func TestParsePolicies_NonStringExceptionsKeepTitles(t *testing.T) {
	t.Parallel()

	answer := `{"policies": [
		{"title": "A", "relevance_score": 0.95, "exceptions": ["when sick", "when travelling"]},
		{"title": "B", "relevance_score": 0.99, "exceptions": ""},
		{"title": "C", "relevance_score": 0.97, "exceptions": {"case": "vip"}},
		{"title": "D", "relevance_score": "high"}
	]}`
	set, err := ParsePolicies(answer)
	if err != nil {
		t.Fatalf("ParsePolicies: %v", err)
	}
	if got := strings.Join(set.HighRelevanceTitles(HighRelevanceThreshold), ","); got != "A,B,C" {
		t.Fatalf("HighRelevanceTitles=%q, want A,B,C", got)
	}
	if set.Policies[0].Exceptions != "when sick; when travelling" {
		t.Fatalf("Exceptions[0]=%q", set.Policies[0].Exceptions)
	}
	if set.Policies[2].Exceptions != `{"case":"vip"}` {
		t.Fatalf("Exceptions[2]=%q", set.Policies[2].Exceptions)
	}
	if !strings.Contains(string(set.Raw), `"D"`) {
		t.Fatalf("Raw dropped the skipped entry: %s", set.Raw)
	}
}

func TestParsePolicies_Failures(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{"", "no policies apply", "{}", "{broken"} {
		_, err := ParsePolicies(answer)
		if !IsKind(err, ErrorPolicyParseFailure) {
			t.Fatalf("ParsePolicies(%q) err=%v, want POLICY_PARSE_FAILURE", answer, err)
		}
	}
}
