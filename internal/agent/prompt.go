package agent

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

type promptFile struct {
	Instruction string `yaml:"instruction"`
}

// LoadInstruction reads the orchestrator instruction from the embedded prompt file.
func LoadInstruction(name string) (string, error) {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", name, err)
	}
	var p promptFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("parse prompt %s: %w", name, err)
	}
	p.Instruction = strings.TrimSpace(p.Instruction)
	if p.Instruction == "" {
		return "", fmt.Errorf("prompt %s has no instruction", name)
	}
	return p.Instruction, nil
}

// systemInstruction appends the caller identity to the base instruction so
// the model can pass it to start_interview.
func systemInstruction(base, userID string) string {
	return fmt.Sprintf("%s\n\nThe candidate's user_id is %q. Use it when calling start_interview.", base, userID)
}
