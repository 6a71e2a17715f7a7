package memory

import "github.com/flemzord/sandy/internal/structured"

var tagSchema = structured.MustSchema(`{
  "type": "object",
  "properties": {
    "tags": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["tags"]
}`)

var summarySchema = structured.MustSchema(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string"}
  },
  "required": ["summary"]
}`)

const taggerSystem = `You label chat messages so they can be found again later.
Give each message between one and three short tags.

Rules:
- lowercase only
- one word or a short hyphenated phrase ("gaming", "bad-joke", "plans")
- "remember" or "important" are fine when the author clearly wants it kept
- describe what the message is about, never filler words
- never more than three

Reply with a JSON object that matches the schema.`

const summarizerSystem = `You write one-sentence summaries of chat messages for an archive.
A good summary:
- keeps the key information or request
- is written in the third person ("The author asks...", "The author describes...")
- stays neutral and factual
- is short enough to skim

Reply with a JSON object that matches the schema.`

func taggerUser(content string) string {
	return "Generate 1-3 tags for this chat message:\n\n" + content
}

func summarizerUser(content string) string {
	return "Summarise this chat message in one sentence:\n\n" + content
}
