package research

import "github.com/richinex/spindle/llm"

// SystemInstruction is the behavior contract given to the oracle.
const SystemInstruction = `You are a recursive research agent.

When given a broad or high-level topic, break it down into 2-3 semantically meaningful subtopics and call the "research" tool for each one individually.

Do not call the research tool if the topic is already well understood or deeply specific. Summarize the topic directly instead.

Always respond with either:
1. A summary paragraph of the topic, or
2. One or more tool calls, each with a single subtopic to be researched.

Be concise and respond in plain English. Avoid repeating the topic verbatim in the subtopics.`

// InitialConversation returns the opening turns for a topic.
func InitialConversation(topic string) []llm.ChatMessage {
	return []llm.ChatMessage{
		llm.SystemMessage(SystemInstruction),
		llm.UserMessage("Research " + topic),
	}
}
