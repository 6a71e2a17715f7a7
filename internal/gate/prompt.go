package gate

import "fmt"

func systemPrompt(bot string) string {
	return fmt.Sprintf(`You decide whether the chat participant %[1]s should reply to the newest message in a channel.

History lines look like: [time ago] [username] message text
Lines from %[1]s itself appear as [%[1]s].

Answer YES (respond) when any of these hold:
- %[1]s is named or @mentioned
- the message is a question or request aimed at %[1]s
- %[1]s asked something recently and the newest message reads as an answer or follow-up to it
- %[1]s and one other person are in an active back-and-forth and the newest message continues it
- the message is an open question or invitation anyone present could pick up
- someone is sharing, describing or venting about something and a reaction from anyone present would feel natural
- %[1]s probably has something interesting to add

Answer NO (stay quiet) when:
- several people are clearly talking among themselves and %[1]s has no stake in it
- the message is a bare reaction with nothing new in it (a single emoji, "lol", "k", "ok")
- %[1]s just spoke and the newest message adds nothing and invites no reply

If genuinely unsure, lean slightly toward YES: %[1]s is among friends who like hearing from it.
Reply only with a JSON object matching the required schema.`, bot)
}

func userPrompt(narrative, bot string) string {
	return fmt.Sprintf("Here is the recent channel history (oldest first, most recent last):\n\n%s\n\nShould %s respond to the most recent message?", narrative, bot)
}
