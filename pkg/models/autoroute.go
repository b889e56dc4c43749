package models

import "strings"

// AutoModelAlias is the model value that requests auto-routing. An empty
// model field is treated the same way.
const AutoModelAlias = "auto"

// defaultCodingKeywords are the prompt tokens that route an un-pinned chat
// request to the coder model.
var defaultCodingKeywords = []string{
	"code", "function", "debug", "compile", "refactor", "stack trace",
	"python", "golang", "javascript", "typescript", "rust", "java ",
	"sql", "regex", "json", "yaml", "api endpoint", "unit test",
	"exception", "segfault", "syntax error", "git ", "dockerfile",
}

// Classifier implements the lightweight keyword rule that picks a model for
// requests with no explicit model.
type Classifier struct {
	keywords []string
	coder    string
	general  string
}

// NewClassifier builds a classifier routing coding-flavored prompts to
// coderModel and everything else to generalModel. An empty keyword list
// selects the built-in defaults.
func NewClassifier(coderModel, generalModel string, keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = defaultCodingKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Classifier{keywords: lowered, coder: coderModel, general: generalModel}
}

// Classify returns the model id for a prompt.
func (c *Classifier) Classify(prompt string) string {
	lowered := strings.ToLower(prompt)
	for _, kw := range c.keywords {
		if strings.Contains(lowered, kw) {
			return c.coder
		}
	}
	return c.general
}
