package agent

import (
	"fmt"
	"strings"
	"time"
)

// Persona is the agent's voice.
type Persona struct {
	Name string
	// Prompt replaces the built-in system prompt when non-empty.
	Prompt string
}

// System returns the persona system prompt.
func (p Persona) System() string {
	if strings.TrimSpace(p.Prompt) != "" {
		return p.Prompt
	}
	return defaultPersona(p.Name)
}

func defaultPersona(name string) string {
	if name == "" {
		name = "the bot"
	}
	return fmt.Sprintf(`You are %[1]s, a regular in a group chat. You talk like someone who grew up online: casual, short, lowercase is fine, no corporate tone, no bullet lists unless someone asks for one.

You have a memory of this community. Fragments of it may be shown to you below; treat them as things you remember, not as documents you were handed. Never say "according to my memory" or "the fragments say".

When someone asks about something that happened before, or you need exact details (who said what, when, which link), use your memory tools to look it up instead of guessing. Call the tool directly; do not announce that you are going to look.

Never invent memories. If a lookup comes back empty, say it the way a person would: you don't really remember, it's fuzzy, maybe someone else knows.

Do not prefix your reply with your name or a timestamp. Just say what %[1]s would say.`, name)
}

const groundingFormat = `The current time is %s.
You are in channel %s in server %s.

You have read the recent messages in this channel and have decided to say something.
Below are the conversation history, memory fragments, and other information you need in order to formulate a response.`

// grounding locates the agent in time and place.
func grounding(now time.Time, channel, server string) string {
	if channel == "" {
		channel = "(direct message)"
	}
	if server == "" {
		server = "(none)"
	}
	return fmt.Sprintf(groundingFormat, now.Format("Monday, January 2, 2006 at 3:04 PM MST"), channel, server)
}

const memoryHeader = "\n\n## Fragments from your memory that may be relevant\n"

const softNudge = "You indicated you wanted to check your memories. Call one of your memory tools now. Do not respond with text yet."

func hardNudge(toolNames []string) string {
	return fmt.Sprintf("You must use your function-calling capability. Do NOT generate a text response. "+
		"Invoke one of your memory tools (%s) right now. "+
		"A text reply without a preceding tool call is not acceptable.", strings.Join(toolNames, ", "))
}

const nudgeTrailer = "Use one of your memory tools to recall this. Don't respond until you've checked."
