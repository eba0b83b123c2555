package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"matchengine/internal/logger"
	"matchengine/internal/metrics"
	"matchengine/internal/model"
	"matchengine/internal/utils"
)

// Oracle is the external ranking capability: one prompt in, raw text out.
// Implementations return *OracleError so callers can tell rate limits from
// quota exhaustion.
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Model() string
}

const (
	// MaxRankedMatches caps the oracle result list.
	MaxRankedMatches = 10
	// MinOracleScore is the reporting floor the oracle is told to apply.
	MinOracleScore = 40

	defaultMaxCandidates = 30
	defaultMaxLogLength  = 200
)

// SoftRankerConfig bounds one oracle call.
type SoftRankerConfig struct {
	Timeout       time.Duration
	RateLimit     float64 // calls per second, 0 means unlimited
	Burst         int
	MaxCandidates int
	MaxLogLength  int
}

// SoftRanker formats candidates for the oracle and parses its answer.
type SoftRanker struct {
	oracle        Oracle
	shortlist     *Ranker
	limiter       *rate.Limiter
	timeout       time.Duration
	maxCandidates int
	maxLogLen     int
	logger        *zap.Logger
}

func NewSoftRanker(oracle Oracle, shortlist *Ranker, cfg SoftRankerConfig, log *zap.Logger) *SoftRanker {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}
	if shortlist == nil {
		shortlist = NewRanker(0.7, 0.3)
	}
	provider, modelName := "", ""
	if oracle != nil {
		provider, modelName = oracle.Name(), oracle.Model()
	}
	return &SoftRanker{
		oracle:        oracle,
		shortlist:     shortlist,
		limiter:       rate.NewLimiter(limit, burst),
		timeout:       cfg.Timeout,
		maxCandidates: cfg.MaxCandidates,
		maxLogLen:     cfg.MaxLogLength,
		logger:        logger.WithOracle(log, provider, modelName),
	}
}

// Rank scores candidates against the buyer's taste. A buyer without a taste
// profile or an empty candidate list yields no matches without an oracle call.
// Malformed oracle output yields no matches and no error.
func (r *SoftRanker) Rank(ctx context.Context, buyer *model.Buyer, candidates []model.Property, feedback []model.Feedback) ([]model.RankedMatch, error) {
	if buyer == nil || !buyer.HasTasteProfile() || len(candidates) == 0 {
		return nil, nil
	}
	if r.oracle == nil {
		return nil, &OracleError{Kind: ErrRankingUnavailable, Provider: "none", Err: errors.New("no ranking oracle configured")}
	}

	shortlisted := r.shortlist.Shortlist(buyer, candidates, r.maxCandidates)
	if len(shortlisted) < len(candidates) {
		r.logger.Info("candidate list shortlisted",
			zap.String(logger.FieldBuyerID, buyer.ID),
			zap.Int("initial", len(candidates)),
			zap.Int("left", len(shortlisted)),
		)
	}

	prompt := buildRankingPrompt(buyer, shortlisted, feedback)
	r.logger.Debug("oracle request",
		zap.String(logger.FieldBuyerID, buyer.ID),
		zap.Int("candidates", len(shortlisted)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, r.fail(&OracleError{Kind: ErrRankingUnavailable, Provider: r.oracle.Name(), Err: fmt.Errorf("rate limiter: %w", err)})
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.oracle.Complete(callCtx, rankingSystemPrompt, prompt)
	if err != nil {
		var oerr *OracleError
		if !errors.As(err, &oerr) {
			oerr = &OracleError{Kind: ErrRankingUnavailable, Provider: r.oracle.Name(), Err: err}
		}
		return nil, r.fail(oerr)
	}

	r.logger.Debug("oracle response",
		zap.String(logger.FieldBuyerID, buyer.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	allowed := make(map[string]struct{}, len(shortlisted))
	for _, p := range shortlisted {
		allowed[p.ID] = struct{}{}
	}

	matches, err := parseRanking(raw, allowed)
	if err != nil {
		metrics.ObserveOracle(r.oracle.Name(), metrics.OutcomeMalformed)
		r.logger.Warn("malformed oracle output, treating as zero matches",
			zap.String(logger.FieldBuyerID, buyer.ID),
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
		)
		return nil, nil
	}

	metrics.ObserveOracle(r.oracle.Name(), metrics.OutcomeOK)
	r.logger.Info("oracle ranked candidates",
		zap.String(logger.FieldBuyerID, buyer.ID),
		zap.Int("candidates", len(shortlisted)),
		zap.Int("ranked", len(matches)),
	)
	return matches, nil
}

func (r *SoftRanker) fail(err *OracleError) error {
	outcome := metrics.OutcomeUnavailable
	switch {
	case errors.Is(err, ErrRateLimited):
		outcome = metrics.OutcomeRateLimited
	case errors.Is(err, ErrQuotaExceeded):
		outcome = metrics.OutcomeQuota
	}
	metrics.ObserveOracle(err.Provider, outcome)
	r.logger.Warn("oracle call failed", zap.Error(err))
	return err
}

// parseRanking extracts {"matches": [...]} from raw, keeping only known ids
// scoring at least MinOracleScore. Scores are clamped to 100, duplicates keep
// the first entry, and the list is sorted by score and capped.
func parseRanking(raw string, allowed map[string]struct{}) ([]model.RankedMatch, error) {
	var data map[string]any
	if err := utils.ParseAIJSON(raw, &data); err != nil {
		return nil, fmt.Errorf("parse oracle response: %w", err)
	}

	items, ok := data["matches"].([]any)
	if !ok {
		if _, present := data["matches"]; present && data["matches"] == nil {
			return []model.RankedMatch{}, nil
		}
		return nil, errors.New("oracle response has no matches array")
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]model.RankedMatch, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := coerceString(entry["property_id"])
		if id == "" {
			id = coerceString(entry["id"])
		}
		if _, known := allowed[id]; !known {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		score := coerceFloat(entry["score"])
		if math.IsNaN(score) {
			continue
		}
		rounded := int(math.Round(score))
		if rounded < MinOracleScore {
			continue
		}
		if rounded > 100 {
			rounded = 100
		}
		seen[id] = struct{}{}
		out = append(out, model.RankedMatch{
			PropertyID: id,
			Score:      rounded,
			Reason:     coerceString(entry["reason"]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxRankedMatches {
		out = out[:MaxRankedMatches]
	}
	return out, nil
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
