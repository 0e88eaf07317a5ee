package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ReportRow is one line of the final merged report.
type ReportRow struct {
	ConversationID        string
	UnitNumber            int
	Messages              string
	PoliciesRelated       string
	PoliciesViolated      string
	PoliciesHighRelevance string
}

// Summary counts the outcomes of a batch. It accompanies the final report.
type Summary struct {
	RunID                  string `json:"run_id,omitempty"`
	Units                  int    `json:"units"`
	Judged                 int    `json:"judged"`
	Violations             int    `json:"violations"`
	RetrievalFailures      int    `json:"retrieval_failures"`
	PolicyParseFailures    int    `json:"policy_parse_failures"`
	JudgeTransportFailures int    `json:"judge_transport_failures"`
	JudgeParseFailures     int    `json:"judge_parse_failures"`
	MissingVerdicts        int    `json:"missing_verdicts"`
}

// Failures is the number of units that did not end in a verdict.
func (s Summary) Failures() int {
	return s.RetrievalFailures + s.PolicyParseFailures + s.JudgeTransportFailures + s.JudgeParseFailures + s.MissingVerdicts
}

type unitKey struct {
	conversationID string
	unit           int
}

// BuildReport joins retrieval results with judged output. Rows are ordered by conversation id, then unit number.
// A policy is high relevance when its score is strictly greater than threshold.
func BuildReport(results []RetrievalResult, judged []JudgedUnit, threshold float64) ([]ReportRow, Summary) {
	byUnit := make(map[unitKey]json.RawMessage, len(judged))
	for _, j := range judged {
		byUnit[unitKey{j.ConversationID, j.UnitNumber}] = j.Output
	}

	var sum Summary
	rows := make([]ReportRow, 0, len(results))
	for _, r := range results {
		u := r.Unit
		sum.Units++
		row := ReportRow{
			ConversationID: u.ConversationID,
			UnitNumber:     u.UnitNumber,
			Messages:       u.Text(),
		}

		if r.Error == "" {
			if set, err := ParsePolicies(r.Answer); err == nil {
				row.PoliciesRelated = prettyJSON(policiesField(set.Raw))
				row.PoliciesHighRelevance = strings.Join(set.HighRelevanceTitles(threshold), ",")
			}
		}

		out, ok := byUnit[unitKey{u.ConversationID, u.UnitNumber}]
		if !ok {
			sum.MissingVerdicts++
			rows = append(rows, row)
			continue
		}
		row.PoliciesViolated = prettyJSON(out)
		countOutcome(&sum, out)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ConversationID != rows[j].ConversationID {
			return rows[i].ConversationID < rows[j].ConversationID
		}
		return rows[i].UnitNumber < rows[j].UnitNumber
	})
	return rows, sum
}

func countOutcome(sum *Summary, out json.RawMessage) {
	v, failure, err := DecodeJudgedOutput(out)
	if err != nil {
		sum.JudgeParseFailures++
		return
	}
	if failure == nil {
		sum.Judged++
		if v.PolicyViolated {
			sum.Violations++
		}
		return
	}
	switch failure.Kind {
	case ErrorRetrievalFailure:
		sum.RetrievalFailures++
	case ErrorPolicyParseFailure:
		sum.PolicyParseFailures++
	case ErrorJudgeParseFailure:
		sum.JudgeParseFailures++
	default:
		sum.JudgeTransportFailures++
	}
}

func policiesField(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if p, ok := obj["policies"]; ok {
		return p
	}
	return json.RawMessage("[]")
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

var reportColumns = []string{"conv_id", "unit", "Messages", "policies_related", "policies_violated", "policies_high_relevance"}

// WriteReportCSV writes the final report.
func WriteReportCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.ConversationID, strconv.Itoa(r.UnitNumber), r.Messages, r.PoliciesRelated, r.PoliciesViolated, r.PoliciesHighRelevance}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
