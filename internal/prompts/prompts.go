// Package prompts holds the embedded LLM prompt templates used to qualify articles.
// Each JSON file maps a prompt key to a text/template body.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

//go:embed *.json
var files embed.FS

// Suitability prompt location
const (
	SuitabilityFile = "suitability.json"
	SuitabilityKey  = "evaluate-suitability"
)

// Article is the data a suitability prompt is rendered with.
type Article struct {
	Company string
	Title   string
	Article string
}

var (
	mu     sync.Mutex
	parsed = make(map[string]map[string]*template.Template) // file -> key -> template
)

// Lookup returns the parsed template stored under key in file.
func Lookup(file, key string) (*template.Template, error) {
	set, err := load(file)
	if err != nil {
		return nil, err
	}
	tmpl, ok := set[key]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found in %s", key, file)
	}
	return tmpl, nil
}

// Render executes the prompt with data. A placeholder data cannot fill is an error.
func Render(file, key string, data any) (string, error) {
	tmpl, err := Lookup(file, key)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s/%s: %w", file, key, err)
	}
	return buf.String(), nil
}

// Keys lists the prompt keys defined in file, sorted.
func Keys(file string) ([]string, error) {
	set, err := load(file)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func load(file string) (map[string]*template.Template, error) {
	mu.Lock()
	defer mu.Unlock()
	if set, ok := parsed[file]; ok {
		return set, nil
	}

	data, err := files.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", file, err)
	}

	set := make(map[string]*template.Template, len(raw))
	for key, body := range raw {
		tmpl, err := template.New(key).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt %s/%s: %w", file, key, err)
		}
		set[key] = tmpl
	}
	parsed[file] = set
	return set, nil
}
