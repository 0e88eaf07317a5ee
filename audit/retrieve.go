package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retriever answers a retrieval query with the service's synthesized text.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// AnswerCache stores retrieval answers by query. Get reports a miss with ok=false and a nil error.
type AnswerCache interface {
	Get(ctx context.Context, query string) (answer string, ok bool, err error)
	Set(ctx context.Context, query, answer string) error
}

// CachedRetriever serves repeated queries from a cache. Cache errors are logged and never fail a retrieval.
type CachedRetriever struct {
	Next   Retriever
	Cache  AnswerCache
	Logger *zap.Logger
}

func (c CachedRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Cache != nil {
		answer, ok, err := c.Cache.Get(ctx, query)
		if err != nil {
			logger.Warn("retrieval cache get failed", zap.Error(err))
		} else if ok {
			return answer, nil
		}
	}

	answer, err := c.Next.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	if c.Cache != nil {
		if err := c.Cache.Set(ctx, query, answer); err != nil {
			logger.Warn("retrieval cache set failed", zap.Error(err))
		}
	}
	return answer, nil
}

// RetrieveUnits runs one retrieval per unit with bounded concurrency. query turns a unit's text into the
// retrieval query; nil sends the text as is. Failed units keep their place with Error set.
func RetrieveUnits(ctx context.Context, r Retriever, units []ReviewableUnit, query func(string) string, opts PoolOptions, logger *zap.Logger, rec Recorder) []RetrievalResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	if query == nil {
		query = func(s string) string { return s }
	}
	rec = recorderOrNop(rec)

	return RunPool(ctx, units, opts, func(ctx context.Context, u ReviewableUnit) RetrievalResult {
		res := RetrievalResult{Unit: u}
		if err := ctx.Err(); err != nil {
			res.Error = NewError(ErrorRetrievalFailure, "not attempted", err).Error()
			rec.ObserveUnit(StageRetrieval, string(ErrorRetrievalFailure))
			return res
		}

		start := time.Now()
		answer, err := r.Retrieve(ctx, query(u.Text()))
		rec.ObserveCall(StageRetrieval, time.Since(start))
		if err != nil {
			res.Error = NewError(ErrorRetrievalFailure, "retrieval call failed", err).Error()
			logger.Warn("retrieval failed",
				zap.String("conversation_id", u.ConversationID),
				zap.Int("unit", u.UnitNumber),
				zap.Error(err),
			)
			rec.ObserveUnit(StageRetrieval, string(ErrorRetrievalFailure))
			return res
		}
		res.Answer = answer
		rec.ObserveUnit(StageRetrieval, OutcomeOK)
		return res
	})
}
