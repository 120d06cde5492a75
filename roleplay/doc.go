// Package roleplay implements the language-model agents that take part in a
// conversation tree: the user simulator, the assistant, the moderator that
// proposes follow-up sub-intents, and the optional turn initiator that
// brainstorms conversation ideas for a seed.
//
// Each agent renders a prompt from a PromptSet, sends it to the next model in
// its llm.ModelPool, parses the reply and reports the tokens the call used.
// Every failure, upstream or parse, surfaces as a retryable
// types.Error with code GENERATION_FAILED.
package roleplay
