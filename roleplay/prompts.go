package roleplay

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/BaSui01/convtree/types"
	"gopkg.in/yaml.v3"
)

const (
	userFormatInstructions      = `Respond with a single JSON object of the form {"prompt": "<the user's message>"} and nothing else.`
	moderatorFormatInstructions = `Respond with a single JSON object of the form {"intents": ["<sub-intent>", "..."]} and nothing else. Return an empty list when the conversation has reached a natural end.`
)

// Built-in templates. History is pre-rendered by RenderHistory.
const (
	defaultUserFirst = `You are role-playing a human user who wants help from an AI assistant.
Start a new conversation pursuing the intent "{{.Intent}}" in the domain "{{.Domain}}".
Write only the user's opening message, in the user's own voice.
{{.FormatInstructions}}`

	defaultUserNext = `{{.History}}
You are the user in the conversation above. Continue it by pursuing the intent "{{.Intent}}" within the domain "{{.Domain}}".
Write only the user's next message; do not answer as the assistant.
{{.FormatInstructions}}`

	defaultModerator = `{{.History}}
You moderate the conversation above. The user's current intent is "{{.Intent}}".
Suggest distinct follow-up sub-intents the user could plausibly pursue next, each a short imperative phrase.
{{.FormatInstructions}}`

	defaultInitiator = `Imagine you are a conversational designer brainstorming a list of innovative and engaging conversation ideas for the intent '{{.Intent}}' in the domain '{{.Domain}}'. Explore approaches that lead to a {{.Type}} and engaging conversation with an AI model. Reply with a numbered list of ideas only, one per line, staying within this intent and domain.`

	defaultAssistantSystem = `You are a helpful and toxicless assistant.`
)

// PromptSet holds the raw template text for every agent. Field names follow
// the keys of the prompts file.
type PromptSet struct {
	UserFirst       string `yaml:"User_first" json:"User_first"`
	UserNext        string `yaml:"User_next" json:"User_next"`
	Moderator       string `yaml:"Moderator" json:"Moderator"`
	Initiator       string `yaml:"Initiator" json:"Initiator"`
	AssistantSystem string `yaml:"Assistant_system" json:"Assistant_system"`
}

// DefaultPromptSet returns the built-in templates.
func DefaultPromptSet() PromptSet {
	return PromptSet{
		UserFirst:       defaultUserFirst,
		UserNext:        defaultUserNext,
		Moderator:       defaultModerator,
		Initiator:       defaultInitiator,
		AssistantSystem: defaultAssistantSystem,
	}
}

// LoadPromptSet reads a YAML (or JSON) prompts file. Keys absent from the
// file keep their built-in value. An empty path returns the defaults.
func LoadPromptSet(path string) (PromptSet, error) {
	ps := DefaultPromptSet()
	if path == "" {
		return ps, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ps, fmt.Errorf("read prompts file: %w", err)
	}

	var override PromptSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		return ps, fmt.Errorf("parse prompts file: %w", err)
	}
	ps.merge(override)
	return ps, nil
}

func (p *PromptSet) merge(o PromptSet) {
	if o.UserFirst != "" {
		p.UserFirst = o.UserFirst
	}
	if o.UserNext != "" {
		p.UserNext = o.UserNext
	}
	if o.Moderator != "" {
		p.Moderator = o.Moderator
	}
	if o.Initiator != "" {
		p.Initiator = o.Initiator
	}
	if o.AssistantSystem != "" {
		p.AssistantSystem = o.AssistantSystem
	}
}

// promptData is the value every template is executed against.
type promptData struct {
	Intent             string
	Domain             string
	Type               string
	History            string
	FormatInstructions string
}

// Templates is a compiled PromptSet.
type Templates struct {
	userFirst       *template.Template
	userNext        *template.Template
	moderator       *template.Template
	initiator       *template.Template
	assistantSystem string
}

// Compile parses every template in the set.
func (p PromptSet) Compile() (*Templates, error) {
	t := &Templates{assistantSystem: p.AssistantSystem}
	var err error
	if t.userFirst, err = parseTemplate("User_first", p.UserFirst); err != nil {
		return nil, err
	}
	if t.userNext, err = parseTemplate("User_next", p.UserNext); err != nil {
		return nil, err
	}
	if t.moderator, err = parseTemplate("Moderator", p.Moderator); err != nil {
		return nil, err
	}
	if t.initiator, err = parseTemplate("Initiator", p.Initiator); err != nil {
		return nil, err
	}
	return t, nil
}

// MustCompileDefaults compiles the built-in templates.
func MustCompileDefaults() *Templates {
	t, err := DefaultPromptSet().Compile()
	if err != nil {
		panic(err)
	}
	return t
}

func parseTemplate(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt template %s is empty", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

func execute(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// RenderUserFirst renders the conversation-opening prompt.
func (t *Templates) RenderUserFirst(intent, domain string) (string, error) {
	return execute(t.userFirst, promptData{
		Intent: intent, Domain: domain, FormatInstructions: userFormatInstructions,
	})
}

// RenderUserNext renders the continuation prompt over history.
func (t *Templates) RenderUserNext(intent, domain string, history []types.ConversationTurn) (string, error) {
	return execute(t.userNext, promptData{
		Intent: intent, Domain: domain, History: RenderHistory(history),
		FormatInstructions: userFormatInstructions,
	})
}

// RenderModerator renders the sub-intent suggestion prompt.
func (t *Templates) RenderModerator(intent string, history []types.ConversationTurn) (string, error) {
	return execute(t.moderator, promptData{
		Intent: intent, History: RenderHistory(history),
		FormatInstructions: moderatorFormatInstructions,
	})
}

// RenderInitiator renders the idea brainstorming prompt.
func (t *Templates) RenderInitiator(intent, domain, style string) (string, error) {
	return execute(t.initiator, promptData{Intent: intent, Domain: domain, Type: style})
}

// AssistantSystem returns the assistant's system message.
func (t *Templates) AssistantSystem() string {
	return t.assistantSystem
}

// RenderHistory flattens turns into the transcript form shown to the user
// and moderator agents:
//
//	User: "..."
//	Assistant: "..."
func RenderHistory(turns []types.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "User: \"%s\"\nAssistant: \"%s\"\n", turn.UserPrompt, turn.AssistantResponse)
	}
	return b.String()
}
