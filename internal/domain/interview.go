// Package domain contains core domain types for the Excel interviewer.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the banded level a question is generated at.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Defaults for a freshly started interview.
const (
	DefaultTopic      = "Formulas"
	DefaultDifficulty = DifficultyBeginner
)

// ParseDifficulty normalises s into one of the known difficulty levels.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner":
		return DifficultyBeginner, true
	case "intermediate":
		return DifficultyIntermediate, true
	case "advanced":
		return DifficultyAdvanced, true
	default:
		return "", false
	}
}

// Verdict is the evaluation outcome for one answer.
type Verdict string

const (
	VerdictCorrect          Verdict = "Correct"
	VerdictPartiallyCorrect Verdict = "Partially Correct"
	VerdictIncorrect        Verdict = "Incorrect"
)

// Valid reports whether v is one of the three accepted verdicts.
// Matching is exact: only "Correct" counts towards the score.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictCorrect, VerdictPartiallyCorrect, VerdictIncorrect:
		return true
	}
	return false
}

// InterviewSession is one candidate's interview and its adaptive state.
type InterviewSession struct {
	ID                string     `json:"session_id"`
	UserID            string     `json:"user_id"`
	CurrentTopic      string     `json:"current_topic"`
	CurrentDifficulty Difficulty `json:"current_difficulty"`
	QuestionCount     int        `json:"question_count"`
	CorrectCount      int        `json:"correct_count"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Score renders the literal "correct / asked" score string.
func (s *InterviewSession) Score() string {
	return fmt.Sprintf("%d / %d", s.CorrectCount, s.QuestionCount)
}

// InterviewTurn is one question/answer/evaluation unit of a session.
// Answer, Verdict and Feedback stay empty until the turn is evaluated.
type InterviewTurn struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	QuestionNumber int       `json:"question_number"`
	QuestionText   string    `json:"question_text"`
	Answer         string    `json:"candidate_answer,omitempty"`
	Verdict        Verdict   `json:"evaluation_result,omitempty"`
	Feedback       string    `json:"feedback_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Evaluated reports whether a verdict has been recorded for the turn.
func (t *InterviewTurn) Evaluated() bool {
	return t.Verdict != ""
}

// Evaluation is the structured result the model returns for an answer.
type Evaluation struct {
	Verdict        Verdict    `json:"evaluation"`
	Feedback       string     `json:"feedback"`
	NextTopic      string     `json:"next_topic"`
	NextDifficulty Difficulty `json:"next_difficulty"`
}

// TranscriptEntry is one turn as rendered in the final summary.
// Pointer fields marshal to null for turns that were never answered.
type TranscriptEntry struct {
	Question   string  `json:"question"`
	Answer     *string `json:"answer"`
	Evaluation *string `json:"evaluation"`
	Feedback   *string `json:"feedback"`
}

// Transcript renders turns, which must already be ordered by question number.
func Transcript(turns []InterviewTurn) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(turns))
	for _, t := range turns {
		entry := TranscriptEntry{
			Question:   t.QuestionText,
			Answer:     optional(t.Answer),
			Evaluation: optional(string(t.Verdict)),
			Feedback:   optional(t.Feedback),
		}
		// An evaluated turn always reports its answer, even an empty one.
		if t.Evaluated() && entry.Answer == nil {
			answer := t.Answer
			entry.Answer = &answer
		}
		entries = append(entries, entry)
	}
	return entries
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
