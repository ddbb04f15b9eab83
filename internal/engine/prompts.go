package engine

import (
	"fmt"
	"strings"

	"github.com/kurek775/saladin/internal/domain"
)

const workerSystemPromptTemplate = `You are a worker agent in a multi-agent task pipeline.
Your job is to complete the task assigned to you to the best of your ability.

%s

When given a task:
1. Think through the task carefully
2. Provide a clear, thorough, and well-structured response

If you receive revision feedback from the supervisor, incorporate it to improve your output.

Current task revision: %d
%s`

const supervisorSystemPromptTemplate = `You are the Supervisor agent in a multi-agent task pipeline.
Your role is to review the outputs from worker agents and make a decision.

You must evaluate each worker's output and respond with a JSON decision:

{
  "decision": "approve" | "reject" | "revise",
  "feedback": "Your detailed feedback here"
}

Guidelines:
- approve: The output is satisfactory, complete, and addresses the task well.
- revise: The output needs improvement. Provide specific, actionable feedback on what to fix.
- reject: The output is fundamentally inadequate and cannot be improved. Explain why.

Be fair but thorough. Only reject if the output is truly unsalvageable.
Only request revision if there are clear, specific improvements needed.
Approve if the output reasonably addresses the task.

Current revision: %d of %d
If this is the final revision allowed, you should either approve or reject.

Task description: %s

Worker outputs to review:
%s`

func workerSystemPrompt(customPrompt string, revision int, revisionFeedback string) string {
	if customPrompt == "" {
		customPrompt = "No additional instructions."
	}
	feedbackText := ""
	if revisionFeedback != "" {
		feedbackText = fmt.Sprintf("Supervisor feedback from previous revision:\n%s", revisionFeedback)
	}
	return fmt.Sprintf(workerSystemPromptTemplate, customPrompt, revision, feedbackText)
}

func workerTaskMessage(description, feedback string) string {
	if feedback == "" {
		return description
	}
	return fmt.Sprintf("%s\n\nRevision feedback: %s", description, feedback)
}

func supervisorPrompt(revision, maxRevisions int, taskDescription string, outputs []domain.WorkerOutput) string {
	outputsText := formatWorkerOutputs(outputs)
	return fmt.Sprintf(supervisorSystemPromptTemplate, revision, maxRevisions, taskDescription, outputsText)
}

func formatWorkerOutputs(outputs []domain.WorkerOutput) string {
	parts := make([]string, 0, len(outputs))
	for _, wo := range outputs {
		text := smartTruncate(wo.Output, maxOutputPerWorker)
		parts = append(parts, fmt.Sprintf("\n--- Worker: %s ---\n%s", wo.AgentName, text))
	}
	joined := strings.Join(parts, "\n")
	if len(joined) > maxTotalOutput {
		joined = smartTruncate(joined, maxTotalOutput)
	}
	return joined
}

// smartTruncate hard-truncates at maxLength; the engine has no summarizer
// collaborator wired (out of scope — §1), so unlike the source there is no
// summarize-before-truncate fallback.
func smartTruncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "\n[... truncated ...]"
}
