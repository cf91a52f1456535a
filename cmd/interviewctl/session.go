package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const sessionFile = ".excel_interviewer_a2a_session.json"

type chatSession struct {
	ContextID string `json:"context_id"`
}

// loadSession returns the saved context id, or "" when there is none.
func loadSession(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	var s chatSession
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("parse session file %s: %w", path, err)
	}
	return s.ContextID, nil
}

func saveSession(path, contextID string) error {
	data, err := json.MarshalIndent(chatSession{ContextID: contextID}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// resetSession removes the session file. A missing file is not an error.
func resetSession(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove session file: %w", err)
	}
	return true, nil
}
