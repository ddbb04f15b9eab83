package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kurek775/saladin/internal/domain"
	"github.com/kurek775/saladin/internal/llm"
)

const (
	maxOutputPerWorker = 4000
	maxTotalOutput     = 12000
)

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(\\{.*?\\})\\s*\\n```")
	fencedAnyBlock  = regexp.MustCompile("(?s)```\\s*\\n(\\{.*?\\})\\s*\\n```")
)

// ReviewResult is the supervisor's verdict for one revision round.
type ReviewResult struct {
	Decision domain.SupervisorDecision
	Feedback string
}

// judge is a pure function of (task description, worker outputs, revision,
// max revision) plus an LLM provider, per the supervisor judge contract.
// Parsing is deterministic: the same response text always yields the same
// verdict.
func judge(ctx context.Context, provider llm.Provider, supProvider, supModel, taskDescription string, outputs []domain.WorkerOutput, revision, maxRevisions int) (ReviewResult, error) {
	prompt := supervisorPrompt(revision, maxRevisions, taskDescription, outputs)

	resp, err := llm.WithRetry(ctx, func() (*llm.Response, error) {
		return provider.ChatCompletion(ctx, llm.Request{
			Provider:  supProvider,
			Model:     supModel,
			MaxTokens: 2048,
			Messages: []llm.Message{
				{Role: "user", Content: prompt},
			},
		})
	})
	if err != nil {
		return ReviewResult{}, fmt.Errorf("supervisor invocation failed: %w", err)
	}

	return parseDecision(resp.Content.ToText()), nil
}

// parseDecision extracts and validates a JSON decision from the supervisor's
// response text. Parse failures default to "revise" with diagnostic
// feedback — the safer of the two defaults observed in the source (see the
// design notes on the divergent parse-failure behavior).
func parseDecision(content string) ReviewResult {
	jsonStr, ok := extractJSON(content)
	if !ok {
		return ReviewResult{
			Decision: domain.DecisionRevise,
			Feedback: "Could not parse supervisor response; requesting revision for safety",
		}
	}

	var raw struct {
		Decision string `json:"decision"`
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return ReviewResult{
			Decision: domain.DecisionRevise,
			Feedback: fmt.Sprintf("Could not parse or validate supervisor response: %s; requesting revision for safety", err),
		}
	}

	switch domain.SupervisorDecision(raw.Decision) {
	case domain.DecisionApprove, domain.DecisionRevise, domain.DecisionReject:
		if strings.TrimSpace(raw.Feedback) == "" {
			return ReviewResult{
				Decision: domain.DecisionRevise,
				Feedback: "Could not validate supervisor response: missing feedback; requesting revision for safety",
			}
		}
		return ReviewResult{Decision: domain.SupervisorDecision(raw.Decision), Feedback: raw.Feedback}
	default:
		return ReviewResult{
			Decision: domain.DecisionRevise,
			Feedback: fmt.Sprintf("Could not parse or validate supervisor response: invalid decision %q; requesting revision for safety", raw.Decision),
		}
	}
}

func extractJSON(content string) (string, bool) {
	if m := fencedJSONBlock.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	if m := fencedAnyBlock.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return "", false
	}
	return content[start : end+1], true
}
