// Package speech holds the fixed set of spoken prompts used on calls.
//
// Prompts are loaded once at startup from a JSON file and are immutable for
// the process lifetime.
package speech

import (
	"encoding/json"
	"fmt"
	"os"
)

// Prompt names.
const (
	Greeting  = "greeting"
	Success   = "success"
	Rejection = "rejection"
	Repeat    = "repeat"
)

// Language is the speech synthesis language tag for all prompts.
const Language = "en-US"

// required is the full prompt set; Load fails if any are missing.
var required = []string{Greeting, Success, Rejection, Repeat}

// Catalog maps prompt names to spoken text. Read-only after Load.
type Catalog struct {
	prompts map[string]string
}

// Load reads the prompt catalog from a JSON file of the form
// {"greeting": "...", "success": "...", "rejection": "...", "repeat": "..."}.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("speech: read %s: %w", path, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("speech: parse %s: %w", path, err)
	}

	for _, name := range required {
		if prompts[name] == "" {
			return nil, fmt.Errorf("speech: %s is missing prompt %q", path, name)
		}
	}

	return &Catalog{prompts: prompts}, nil
}

// Prompt returns the text for a prompt name.
func (c *Catalog) Prompt(name string) (string, bool) {
	text, ok := c.prompts[name]
	return text, ok
}

// MustPrompt returns the text for a known prompt name. It panics on unknown
// names, which cannot happen for the fixed set validated by Load.
func (c *Catalog) MustPrompt(name string) string {
	text, ok := c.prompts[name]
	if !ok {
		panic("speech: unknown prompt " + name)
	}
	return text
}
