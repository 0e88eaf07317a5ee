package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// JudgeRequest is one unit's messages and its retrieved policies, as sent to the compliance judge.
type JudgeRequest struct {
	ConversationID string
	UnitNumber     int
	Messages       string

	// Policies is the indented policy object extracted from the retrieval answer.
	Policies json.RawMessage
}

// UserPrompt renders the user turn of the judge conversation.
func (r JudgeRequest) UserPrompt() string {
	return fmt.Sprintf("Messages: %s\nPolicies: %s", r.Messages, string(r.Policies))
}

// Judge returns the raw model text for one request. Implementations must not interpret the text.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (string, error)
}

// JudgeUnits judges every retrieval result with bounded concurrency. Every input yields exactly one JudgedUnit,
// in input order: a verdict on success, or a failure object naming what went wrong.
func JudgeUnits(ctx context.Context, judge Judge, results []RetrievalResult, opts PoolOptions, logger *zap.Logger, rec Recorder) []JudgedUnit {
	if logger == nil {
		logger = zap.NewNop()
	}
	rec = recorderOrNop(rec)

	return RunPool(ctx, results, opts, func(ctx context.Context, r RetrievalResult) JudgedUnit {
		out, kind := judgeOne(ctx, judge, r, rec)
		status := OutcomeOK
		if kind != "" {
			status = string(kind)
			logger.Warn("unit not judged",
				zap.String("conversation_id", r.Unit.ConversationID),
				zap.Int("unit", r.Unit.UnitNumber),
				zap.String("kind", string(kind)),
			)
		}
		rec.ObserveUnit(StageJudge, status)
		return out
	})
}

func judgeOne(ctx context.Context, judge Judge, r RetrievalResult, rec Recorder) (JudgedUnit, ErrorKind) {
	u := r.Unit
	fail := func(f FailureOutput) (JudgedUnit, ErrorKind) {
		return judgedUnit(u, f), f.Kind
	}

	if r.Error != "" {
		return fail(FailureOutput{Kind: ErrorRetrievalFailure, Error: "Error: " + r.Error})
	}
	policies, err := ParsePolicies(r.Answer)
	if err != nil {
		return fail(FailureOutput{Kind: ErrorPolicyParseFailure, Error: "Error: " + ErrNoPolicies.Error()})
	}
	if err := ctx.Err(); err != nil {
		return fail(FailureOutput{Kind: ErrorJudgeTransportFailure, Error: "Error: " + err.Error()})
	}

	start := time.Now()
	raw, err := judge.Judge(ctx, JudgeRequest{
		ConversationID: u.ConversationID,
		UnitNumber:     u.UnitNumber,
		Messages:       u.Text(),
		Policies:       policies.Raw,
	})
	rec.ObserveCall(StageJudge, time.Since(start))
	if err != nil {
		return fail(FailureOutput{Kind: ErrorJudgeTransportFailure, Error: "Error: " + err.Error()})
	}

	v, pf := ExtractVerdict(raw)
	if pf != nil {
		return fail(FailureOutput{Kind: ErrorJudgeParseFailure, Error: pf.Message, Raw: pf.Raw})
	}
	v.ConversationID = u.ConversationID
	if v.PoliciesViolated == nil {
		v.PoliciesViolated = []ViolatedPolicy{}
	}
	if v.PolicyViolated {
		rec.ObserveViolation()
	}
	return judgedUnit(u, v), ""
}

func judgedUnit(u ReviewableUnit, output any) JudgedUnit {
	b, err := json.Marshal(output)
	if err != nil {
		b, _ = json.Marshal(FailureOutput{Kind: ErrorJudgeParseFailure, Error: err.Error()})
	}
	return JudgedUnit{ConversationID: u.ConversationID, UnitNumber: u.UnitNumber, Output: b}
}

// DecodeJudgedOutput reports whether a judged output is a verdict or a failure object.
func DecodeJudgedOutput(raw json.RawMessage) (Verdict, *FailureOutput, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Verdict{}, nil, fmt.Errorf("DecodeJudgedOutput: %w", err)
	}
	if _, ok := probe["error"]; ok {
		var f FailureOutput
		if err := json.Unmarshal(raw, &f); err != nil {
			return Verdict{}, nil, fmt.Errorf("DecodeJudgedOutput: %w", err)
		}
		return Verdict{}, &f, nil
	}
	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, nil, fmt.Errorf("DecodeJudgedOutput: %w", err)
	}
	return v, nil, nil
}

// ReadJudgedFile loads a judged output artifact.
func ReadJudgedFile(path string) ([]JudgedUnit, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadJudgedFile: %w", err)
	}
	var judged []JudgedUnit
	if err := json.Unmarshal(b, &judged); err != nil {
		return nil, fmt.Errorf("ReadJudgedFile: decode %s: %w", path, err)
	}
	return judged, nil
}
