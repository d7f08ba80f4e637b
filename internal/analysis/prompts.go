package analysis

import (
	"strings"

	"github.com/thebtf/nurturenote/internal/privacy"
	"github.com/thebtf/nurturenote/pkg/models"
)

// DefaultQuestion is asked when the caller supplies none.
const DefaultQuestion = "최근 기록을 바탕으로 도움이 될 일반 조언을 알려줘."

// SingleEntryQuestion is asked when one new entry is analysed in the background.
const SingleEntryQuestion = "이 기록을 바탕으로 엄마의 감정과 아이 발달 관찰을 요약하고, 실천 가능한 육아 조언을 알려줘."

// fieldGuides describes each canonical output key to the model.
var fieldGuides = []struct {
	key   string
	guide string
}{
	{models.FieldMaternalFeedback, "specific, empathetic feedback on the mother's feelings (list of short sentences)"},
	{models.FieldChildDevelopmentInsights, "developmental insights grounded in the observed child behaviour (factual, no exaggeration)"},
	{models.FieldParentingGuidelines, "actionable parenting guidelines backed by evidence (imperative sentences)"},
	{models.FieldSources, "reference sources only when needed, preferring official bodies and documents; each item may carry title/text and url"},
}

// Question returns q trimmed, or DefaultQuestion when q is blank.
func Question(q string) string {
	if q = strings.TrimSpace(q); q != "" {
		return q
	}
	return DefaultQuestion
}

// BuildSystemPrompt builds the instruction prompt fixing the output keys and discipline.
func BuildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("Answer in Korean, as a single JSON object and nothing else.\n")
	sb.WriteString("The object has exactly these four keys:\n")
	for _, f := range fieldGuides {
		sb.WriteString("- ")
		sb.WriteString(f.key)
		sb.WriteString(": ")
		sb.WriteString(f.guide)
		sb.WriteString("\n")
	}
	sb.WriteString(`Rules:
- Base observations and insights on the diary text and the file knowledge (file_search). Use web search only to fill gaps.
- When something cannot be stated with confidence, say it is uncertain instead of guessing.
- Keep sentences short and clear. No preamble.
Output JSON with only the four keys above.`)

	return sb.String()
}

// SerializeEntries renders entries as "created_at | mood | body" lines.
// Private spans are removed from bodies first.
func SerializeEntries(entries []models.EntrySnapshot) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		e.Body = privacy.StripPrivate(e.Body)
		lines = append(lines, e.PromptLine())
	}
	return strings.Join(lines, "\n")
}

// BuildUserPrompt builds the per-call message carrying the entries and the question.
func BuildUserPrompt(entries []models.EntrySnapshot, question string) string {
	var sb strings.Builder

	sb.WriteString("entries_text:\n")
	sb.WriteString(SerializeEntries(entries))
	sb.WriteString("\n\n")
	sb.WriteString("Summarise recent tendencies observed in the entries above and answer the question.\n")
	sb.WriteString("question: ")
	sb.WriteString(Question(question))

	return sb.String()
}
