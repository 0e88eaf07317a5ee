package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
)

// ErrNoPolicies is returned when a retrieval answer holds no usable JSON object.
var ErrNoPolicies = errors.New("could not extract valid JSON from policies field")

// ParsePolicies extracts the JSON object from a retrieval answer. The typed policy list is decoded one entry at a
// time and entries that do not fit PolicyCandidate are skipped; Raw, which is what the judge receives, keeps them.
func ParsePolicies(answer string) (PolicySet, error) {
	obj, err := fileutils.ExtractJSONObject(answer)
	if err != nil {
		return PolicySet{}, NewError(ErrorPolicyParseFailure, ErrNoPolicies.Error(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return PolicySet{}, NewError(ErrorPolicyParseFailure, ErrNoPolicies.Error(), err)
	}
	if len(fields) == 0 {
		return PolicySet{}, NewError(ErrorPolicyParseFailure, ErrNoPolicies.Error(), ErrNoPolicies)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, []byte(obj), "", "  "); err != nil {
		return PolicySet{}, NewError(ErrorPolicyParseFailure, ErrNoPolicies.Error(), err)
	}

	var set PolicySet
	if raw, ok := fields["policies"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			for _, item := range items {
				var c PolicyCandidate
				if err := json.Unmarshal(item, &c); err != nil {
					continue
				}
				set.Policies = append(set.Policies, c)
			}
		}
	}
	set.Raw = indented.Bytes()
	return set, nil
}

// ParseFailure is a judge response that could not be read as a verdict. Raw is the untouched model text.
type ParseFailure struct {
	Message string
	Raw     string
}

// ExtractVerdict reads a verdict out of raw model text. Code fences and surrounding prose are tolerated; the
// object spans from the first '{' to the last '}'.
func ExtractVerdict(raw string) (Verdict, *ParseFailure) {
	var v Verdict
	if err := fileutils.DecodeModelJSON(raw, &v); err != nil {
		return Verdict{}, &ParseFailure{Message: fmt.Sprintf("Error parsing API response: %v", err), Raw: raw}
	}
	return v, nil
}
