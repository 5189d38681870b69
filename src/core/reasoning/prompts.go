package reasoning

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"algomind/src/core/model"
)

const tutorSystem = `You are an algorithm tutor. Answer precisely using the knowledge provided. ` +
	`If the knowledge is incomplete, say what you are unsure about instead of inventing facts. ` +
	`Answer in the same language as the question.`

const answerTmpl = `{{.instruction}}

QUESTION:
{{.question}}
{{if .history}}
CONVERSATION SO FAR:
{{.history}}
{{end}}
KNOWLEDGE:
{{.knowledge}}

ANSWER:`

var answerPrompt = prompts.NewPromptTemplate(answerTmpl, []string{"instruction", "question", "history", "knowledge"})

var instructions = map[model.Intent]string{
	model.IntentConceptExplanation: "Explain the concept in the question: its definition, the core principles, " +
		"typical complexity, and one worked example. Keep it structured and concise.",
	model.IntentProblemRecommendation: "Recommend practice problems for the question. For each recommended problem, " +
		"say in one sentence why it fits. Order them from easiest to hardest when difficulty is known.",
	model.IntentSimilarProblems: "List problems similar to the one in the question and explain what technique " +
		"they share with it.",
	model.IntentGeneralQuery: "Answer the question directly.",
}

const maxPromptTriples = 20

// renderPrompt formats the generation prompt for q from the retrieved knowledge
func renderPrompt(q *Query, k Knowledge) (string, error) {
	instruction, ok := instructions[q.Intent]
	if !ok {
		instruction = instructions[model.IntentGeneralQuery]
	}
	out, err := answerPrompt.Format(map[string]any{
		"instruction": instruction,
		"question":    q.Request.Text,
		"history":     renderHistory(q.Request.Context),
		"knowledge":   renderKnowledge(q, k),
	})
	if err != nil {
		return "", fmt.Errorf("format answer prompt: %w", err)
	}
	return out, nil
}

func renderHistory(turns []model.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimSpace(sb.String())
}

func renderKnowledge(q *Query, k Knowledge) string {
	var sb strings.Builder

	if q.Focus != nil {
		fmt.Fprintf(&sb, "Focus entity: %s (%s)\n", q.Focus.Name, q.Focus.Type)
	}
	if c := k.Concept; c != nil {
		fmt.Fprintf(&sb, "Definition of %s: %s\n", c.Name, c.Definition)
		if len(c.Principles) > 0 {
			fmt.Fprintf(&sb, "Principles: %s\n", strings.Join(c.Principles, "; "))
		}
		if c.Complexity != "" {
			fmt.Fprintf(&sb, "Complexity: %s\n", c.Complexity)
		}
		if len(c.Examples) > 0 {
			fmt.Fprintf(&sb, "Classic examples: %s\n", strings.Join(c.Examples, ", "))
		}
	}
	if len(k.Graph.Triples) > 0 {
		sb.WriteString("Knowledge graph relations:\n")
		for i, t := range k.Graph.Triples {
			if i == maxPromptTriples {
				fmt.Fprintf(&sb, "- ... %d more\n", len(k.Graph.Triples)-i)
				break
			}
			fmt.Fprintf(&sb, "- %s -[%s]-> %s\n", t.Source.Label, t.Relation, t.Target.Label)
		}
	}
	if len(k.Recommendations) > 0 {
		sb.WriteString("Related entries:\n")
		for _, r := range k.Recommendations {
			fmt.Fprintf(&sb, "- %s (source %s, score %.2f)\n", r.Title, r.Source, r.Score)
		}
	}
	if q.Request.Difficulty != "" {
		fmt.Fprintf(&sb, "Requested difficulty: %s\n", q.Request.Difficulty)
	}

	if sb.Len() == 0 {
		return "No structured knowledge was found. Answer from general knowledge."
	}
	return strings.TrimSpace(sb.String())
}
