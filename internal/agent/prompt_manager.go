package agent

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	PlannerPrompt     = "planner.md"
	QueryAgentPrompt  = "query_agent.md"
	SearchAgentPrompt = "search_agent.md"
)

// PromptManager loads system prompts. Files in Directory override the
// built-in prompt of the same name; extra .md files in Directory are
// appended to every agent prompt (but not the planner's).
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// Get returns the prompt called name.
func (pm *PromptManager) Get(name string) (string, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %v", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("no prompt named %s", name)
	}
	return string(data), nil
}

// GetAgentPrompt returns the named agent prompt followed by any shared
// prompt files from Directory, in file name order.
func (pm *PromptManager) GetAgentPrompt(name string) (string, error) {
	base, err := pm.Get(name)
	if err != nil {
		return "", err
	}
	contents := []string{base}

	for _, extra := range pm.sharedFiles() {
		data, err := os.ReadFile(filepath.Join(pm.Directory, extra))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt %s: %v", extra, err)
		}
		contents = append(contents, string(data))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	return pm.Get(PlannerPrompt)
}

func (pm *PromptManager) sharedFiles() []string {
	if pm == nil || pm.Directory == "" {
		return nil
	}
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return nil
	}

	reserved := map[string]bool{
		PlannerPrompt:     true,
		QueryAgentPrompt:  true,
		SearchAgentPrompt: true,
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || reserved[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
