package translate

import (
	"fmt"
	"strings"
)

// PromptTemplate 翻译提示词
type PromptTemplate struct {
	SystemPrompt string
	Rules        []string
}

// defaultTemplate keeps the model to a bare translation of the user text.
var defaultTemplate = PromptTemplate{
	SystemPrompt: "You are a professional translator. Translate the user's message from {source} to {target}.",
	Rules: []string{
		"Output only the translation, with no explanations, notes or quotes.",
		"Keep names, numbers, URLs and emoji unchanged.",
		"Preserve line breaks.",
		"If the message is already in {target}, return it unchanged.",
	},
}

// BuildSystemPrompt renders the template for a language pair. The result is
// itself an FString template; {source} and {target} are filled in by the chain.
func (t PromptTemplate) BuildSystemPrompt() string {
	if len(t.Rules) == 0 {
		return t.SystemPrompt
	}
	return fmt.Sprintf("%s\n\nRules:\n- %s", t.SystemPrompt, strings.Join(t.Rules, "\n- "))
}
