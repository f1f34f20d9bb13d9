package ai

import (
	"fmt"
)

const systemPrompt = `You analyze transcripts of recorded audio.
Be accurate, neutral and factual.
Do NOT invent information; use only what the transcript says.
Reply in the transcript's language, keeping technical terms as spoken.
Return valid JSON with every field present, using empty arrays when nothing applies.`

// BuildPrompt builds the system and user prompts for one transcript.
func BuildPrompt(transcript string, context string) (string, string) {
	userPrompt := fmt.Sprintf(`Transcript:
"""
%s
"""

Context: %s

Tasks:
1. A short summary of at most 5 points.
2. Explicit action items, if any.
3. Key facts: figures, names, commitments or main ideas.
4. A title of at most 10 words.

For a meeting, action_items should hold tasks and commitments.
For a lecture or thinking session, key_points should hold the main ideas.

Return JSON in exactly this shape:

{
  "context": "%s",
  "title": "short title",
  "summary": ["point 1", "point 2"],
  "action_items": ["task 1"],
  "key_points": ["fact 1", "fact 2"]
}`, transcript, context, context)

	return systemPrompt, userPrompt
}
