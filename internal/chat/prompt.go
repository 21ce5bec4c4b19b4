package chat

// BuildPrompt assembles the generation prompt for text. When the user is
// replying to an earlier assistant message its text is quoted as context.
func BuildPrompt(systemPrompt, text string, replyTo *Message) string {
	if replyTo != nil {
		return systemPrompt +
			"\nUser is replying to your previous message: \"" + replyTo.Text + "\"" +
			"\nUser's reply: " + text
	}
	return systemPrompt + " " + text
}
