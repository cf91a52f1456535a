package interview

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/excel-interviewer/internal/domain"
	"github.com/ashureev/excel-interviewer/internal/store"
	"github.com/google/go-cmp/cmp"
)

// fakeModel returns queued responses in order and records prompts.
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func newTestService(t *testing.T, model *fakeModel) (*Service, *store.SQLiteStore) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "interview.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return NewService(repo, model, nil), repo
}

const unknownSession = "00000000-0000-0000-0000-000000000000"

func TestCreateSessionDefaults(t *testing.T) {
	svc, repo := newTestService(t, &fakeModel{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, "candidate")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	session, err := repo.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.CurrentTopic != "Formulas" || session.CurrentDifficulty != domain.DifficultyBeginner {
		t.Fatalf("unexpected defaults: %+v", session)
	}
	if session.QuestionCount != 0 || session.CorrectCount != 0 {
		t.Fatalf("counters not zero: %+v", session)
	}
}

func TestCreateSessionRequiresUser(t *testing.T) {
	svc, _ := newTestService(t, &fakeModel{})
	if _, err := svc.CreateSession(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("CreateSession() error = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateQuestionAppendsTurn(t *testing.T) {
	model := &fakeModel{responses: []string{"  What does SUM do?  ", "What does AVERAGE do?"}}
	svc, _ := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")

	q1, err := svc.GenerateQuestion(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuestion() error = %v", err)
	}
	want := &Question{SessionID: id, QuestionNumber: 1, QuestionText: "What does SUM do?"}
	if diff := cmp.Diff(want, q1); diff != "" {
		t.Fatalf("question mismatch (-want +got):\n%s", diff)
	}

	q2, err := svc.GenerateQuestion(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuestion() error = %v", err)
	}
	if q2.QuestionNumber != 2 {
		t.Fatalf("second question number = %d, want 2", q2.QuestionNumber)
	}
	if !strings.Contains(model.prompts[1], "What does SUM do?") {
		t.Fatal("second prompt should list the previous question")
	}
	if !strings.Contains(model.prompts[1], "question number: 2") {
		t.Fatal("second prompt should carry the next question index")
	}
}

func TestGenerateQuestionNotFound(t *testing.T) {
	model := &fakeModel{responses: []string{"q"}}
	svc, _ := newTestService(t, model)

	_, err := svc.GenerateQuestion(context.Background(), unknownSession)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GenerateQuestion() error = %v, want ErrNotFound", err)
	}
	if len(model.prompts) != 0 {
		t.Fatal("model should not be called for an unknown session")
	}
}

func TestGenerateQuestionModelFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "model error", model: &fakeModel{err: errors.New("quota")}},
		{name: "empty output", model: &fakeModel{responses: []string{"   "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, tt.model)
			ctx := context.Background()
			id, _ := svc.CreateSession(ctx, "u")

			_, err := svc.GenerateQuestion(ctx, id)
			if !errors.Is(err, domain.ErrUpstreamUnavailable) {
				t.Fatalf("GenerateQuestion() error = %v, want ErrUpstreamUnavailable", err)
			}
			session, _ := repo.GetSession(ctx, id)
			if session.QuestionCount != 0 {
				t.Fatalf("question count = %d after failure", session.QuestionCount)
			}
		})
	}
}

func TestEvaluateAnswerCorrect(t *testing.T) {
	model := &fakeModel{responses: []string{
		"What does SUM do?",
		"```json\n{\"evaluation\":\"Correct\",\"feedback\":\"Nice.\",\"next_topic\":\"Lookup Functions\",\"next_difficulty\":\"intermediate\"}\n```",
	}}
	svc, repo := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")
	if _, err := svc.GenerateQuestion(ctx, id); err != nil {
		t.Fatalf("GenerateQuestion() error = %v", err)
	}

	got, err := svc.EvaluateAnswer(ctx, id, "It adds numbers")
	if err != nil {
		t.Fatalf("EvaluateAnswer() error = %v", err)
	}
	want := &EvaluationResult{SessionID: id, Evaluation: domain.Evaluation{
		Verdict:        domain.VerdictCorrect,
		Feedback:       "Nice.",
		NextTopic:      "Lookup Functions",
		NextDifficulty: domain.DifficultyIntermediate,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("evaluation mismatch (-want +got):\n%s", diff)
	}

	session, _ := repo.GetSession(ctx, id)
	if session.CorrectCount != 1 || session.CurrentTopic != "Lookup Functions" || session.CurrentDifficulty != domain.DifficultyIntermediate {
		t.Fatalf("session not updated: %+v", session)
	}

	model.responses = []string{"What does VLOOKUP return?"}
	if _, err := svc.GenerateQuestion(ctx, id); err != nil {
		t.Fatalf("GenerateQuestion() error = %v", err)
	}
	next := model.prompts[len(model.prompts)-1]
	if !strings.Contains(next, `"Lookup Functions"`) || !strings.Contains(next, `"Intermediate"`) {
		t.Fatalf("next question prompt does not follow the evaluation:\n%s", next)
	}
}

func TestEvaluateAnswerRequiresAnswer(t *testing.T) {
	model := &fakeModel{responses: []string{"q"}}
	svc, repo := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")
	_, _ = svc.GenerateQuestion(ctx, id)

	for _, answer := range []string{"", "  \n\t"} {
		if _, err := svc.EvaluateAnswer(ctx, id, answer); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("EvaluateAnswer(%q) error = %v, want ErrInvalidInput", answer, err)
		}
	}
	if len(model.prompts) != 1 {
		t.Fatalf("model called %d times, want only the question prompt", len(model.prompts))
	}
	turn, _ := repo.LatestTurn(ctx, id)
	if turn.Evaluated() {
		t.Fatalf("turn evaluated without an answer: %+v", turn)
	}
}

func TestEvaluateAnswerPartiallyCorrectDoesNotScore(t *testing.T) {
	model := &fakeModel{responses: []string{
		"q",
		`{"evaluation":"Partially Correct","feedback":"Almost.","next_topic":"Formulas","next_difficulty":"Beginner"}`,
	}}
	svc, repo := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")
	_, _ = svc.GenerateQuestion(ctx, id)

	if _, err := svc.EvaluateAnswer(ctx, id, "a"); err != nil {
		t.Fatalf("EvaluateAnswer() error = %v", err)
	}
	session, _ := repo.GetSession(ctx, id)
	if session.CorrectCount != 0 {
		t.Fatalf("correct count = %d, want 0", session.CorrectCount)
	}
}

func TestEvaluateAnswerNotFound(t *testing.T) {
	model := &fakeModel{responses: []string{
		"q",
		`{"evaluation":"Incorrect","feedback":"No.","next_topic":"Formulas","next_difficulty":"Beginner"}`,
	}}
	svc, _ := newTestService(t, model)
	ctx := context.Background()

	if _, err := svc.EvaluateAnswer(ctx, unknownSession, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown session: error = %v, want ErrNotFound", err)
	}

	id, _ := svc.CreateSession(ctx, "u")
	if _, err := svc.EvaluateAnswer(ctx, id, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no turns: error = %v, want ErrNotFound", err)
	}

	_, _ = svc.GenerateQuestion(ctx, id)
	if _, err := svc.EvaluateAnswer(ctx, id, "a"); err != nil {
		t.Fatalf("EvaluateAnswer() error = %v", err)
	}
	if _, err := svc.EvaluateAnswer(ctx, id, "again"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("already evaluated: error = %v, want ErrNotFound", err)
	}
}

func TestEvaluateAnswerRejectsBadModelOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{name: "not json", out: "I think it's fine"},
		{name: "unknown verdict", out: `{"evaluation":"Mostly Right","feedback":"x","next_topic":"t","next_difficulty":"Beginner"}`},
		{name: "unknown difficulty", out: `{"evaluation":"Correct","feedback":"x","next_topic":"t","next_difficulty":"Expert"}`},
		{name: "missing topic", out: `{"evaluation":"Correct","feedback":"x","next_difficulty":"Advanced"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{responses: []string{"q", tt.out}}
			svc, repo := newTestService(t, model)
			ctx := context.Background()
			id, _ := svc.CreateSession(ctx, "u")
			_, _ = svc.GenerateQuestion(ctx, id)

			_, err := svc.EvaluateAnswer(ctx, id, "a")
			if !errors.Is(err, domain.ErrUpstreamUnavailable) {
				t.Fatalf("EvaluateAnswer() error = %v, want ErrUpstreamUnavailable", err)
			}
			turn, _ := repo.LatestTurn(ctx, id)
			if turn.Evaluated() || turn.Answer != "" {
				t.Fatalf("turn mutated after rejected evaluation: %+v", turn)
			}
			session, _ := repo.GetSession(ctx, id)
			if session.CurrentTopic != "Formulas" || session.CurrentDifficulty != domain.DifficultyBeginner {
				t.Fatalf("session mutated after rejected evaluation: %+v", session)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	model := &fakeModel{responses: []string{
		"Q1",
		`{"evaluation":"Correct","feedback":"Good.","next_topic":"Lookup","next_difficulty":"Advanced"}`,
		"Q2",
		`Sure! {"strengths":"Solid basics.","areas_for_improvement":"Practice lookups."}`,
	}}
	svc, _ := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")
	_, _ = svc.GenerateQuestion(ctx, id)
	_, _ = svc.EvaluateAnswer(ctx, id, "A1")
	_, _ = svc.GenerateQuestion(ctx, id)

	got, err := svc.Summarize(ctx, id)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	answer, verdict, feedback := "A1", "Correct", "Good."
	want := &Summary{
		Score:               "1 / 2",
		Strengths:           "Solid basics.",
		AreasForImprovement: "Practice lookups.",
		FullTranscript: []domain.TranscriptEntry{
			{Question: "Q1", Answer: &answer, Evaluation: &verdict, Feedback: &feedback},
			{Question: "Q2"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(model.prompts[3], "1 out of 2") {
		t.Fatal("summary prompt should state the score")
	}
	for _, want := range []string{`"Lookup"`, `"Advanced"`} {
		if !strings.Contains(model.prompts[2], want) {
			t.Fatalf("second question prompt missing %s:\n%s", want, model.prompts[2])
		}
	}
}

func TestSummarizeWithoutTurns(t *testing.T) {
	model := &fakeModel{responses: []string{`{"strengths":"Showed up.","areas_for_improvement":"Answer a question."}`}}
	svc, _ := newTestService(t, model)
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")

	got, err := svc.Summarize(ctx, id)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Score != "0 / 0" {
		t.Fatalf("score = %q, want 0 / 0", got.Score)
	}
	if got.FullTranscript == nil || len(got.FullTranscript) != 0 {
		t.Fatalf("transcript = %#v, want empty non-nil slice", got.FullTranscript)
	}
	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"full_transcript":[]`) {
		t.Fatalf("summary json = %s", raw)
	}
}

func TestSummarizeFailures(t *testing.T) {
	svc, _ := newTestService(t, &fakeModel{responses: []string{`{"strengths":"only"}`}})
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, unknownSession); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown session: error = %v, want ErrNotFound", err)
	}

	id, _ := svc.CreateSession(ctx, "u")
	if _, err := svc.Summarize(ctx, id); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("incomplete narrative: error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestGetSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeModel{responses: []string{"Q1"}})
	ctx := context.Background()
	id, _ := svc.CreateSession(ctx, "u")
	_, _ = svc.GenerateQuestion(ctx, id)

	detail, err := svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if detail.ID != id || len(detail.Turns) != 1 || detail.Turns[0].QuestionText != "Q1" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}
