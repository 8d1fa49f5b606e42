package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager("")
	for _, name := range []string{PlannerPrompt, QueryAgentPrompt, SearchAgentPrompt} {
		prompt, err := pm.Get(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if strings.TrimSpace(prompt) == "" {
			t.Errorf("%s is empty", name)
		}
	}
	if _, err := pm.Get("missing.md"); err == nil {
		t.Error("expected an error for an unknown prompt")
	}
}

func TestPromptManager_GetAgentPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"query_agent.md": "Query Override",
		"planner.md":     "Planner Override",
		"b_style.md":     "Style Content",
		"a_company.md":   "Company Content",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetAgentPrompt(QueryAgentPrompt)
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{"Query Override", "Company Content", "Style Content"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Planner Override") {
		t.Error("planner prompt must not be shared with agents")
	}

	// Verify order
	if strings.Index(prompt, "Query Override") >= strings.Index(prompt, "Company Content") {
		t.Error("Agent prompt should come before shared files")
	}
	if strings.Index(prompt, "Company Content") >= strings.Index(prompt, "Style Content") {
		t.Error("Shared files should be in name order")
	}

	search, err := pm.GetAgentPrompt(SearchAgentPrompt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(search, "web_search") {
		t.Error("search agent should fall back to the built-in prompt")
	}

	planner, err := pm.GetPlannerPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if planner != "Planner Override" {
		t.Errorf("unexpected planner prompt %q", planner)
	}
}
