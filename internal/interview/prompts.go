package interview

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/excel-interviewer/internal/domain"
)

func questionPrompt(session *domain.InterviewSession, previous []string) string {
	prev, _ := json.Marshal(previous)
	return fmt.Sprintf(`
You are an AI emulating a **Senior Data Analyst** conducting a professional Excel interview.
Your goal is to generate a **single, scenario-based, practical question** that tests the candidate's Excel skills.

### Interview Context
- Candidate is on question number: %d
- Current Topic Area: %q
- Current Difficulty Level: %q
- Previous questions asked in this session (do not repeat): %s

### Rules for Question Generation
1. The question must be Excel-specific, framed as a small real-world business scenario, preferably from Finance, Operations, or Data Analytics.
2. The scenario should directly test the Current Topic Area.
3. Match the Current Difficulty Level:
   - Beginner: a single, straightforward function or concept.
   - Intermediate: requires combining 2+ functions or applying logic/criteria.
   - Advanced: a multi-step, nested, or modeling-level challenge (pivot tables, dynamic ranges, automation).
4. Each question must be unique and must not overlap with earlier ones.
5. Keep the question concise (max 3 sentences) and clearly scorable.
6. Return ONLY the plain question text, with no preamble or formatting.

### Example Style
- Beginner (Formulas): "You run a bookstore, and Column A has book titles while Column B has the number of copies sold. What formula would you use to calculate the total books sold?"
- Intermediate (Lookup): "You manage employee records where Column A has Employee IDs and Column M has salaries. On another sheet, you have a list of Employee IDs. How would you fetch the correct salary for each?"
- Advanced (Pivot Tables): "You have a dataset with 'Date', 'Region', 'Product', and 'Sales Amount'. How would you create a report that shows monthly sales by product category, broken down by region?"
`, session.QuestionCount+1, session.CurrentTopic, string(session.CurrentDifficulty), prev)
}

func evaluationPrompt(question, answer string) string {
	return fmt.Sprintf(`
You are an expert Excel interview evaluator.
The question asked was: %q
The candidate's answer is: %q

Analyze the answer and provide the following in a single JSON object:
1. "evaluation": a single string, exactly one of "Correct", "Partially Correct" or "Incorrect".
2. "feedback": a concise, one-sentence explanation for your evaluation. Be encouraging.
3. "next_topic": the next Excel topic. If the answer was Correct, move to a related, more advanced topic. If Incorrect, suggest a related fundamental topic.
4. "next_difficulty": the next difficulty. If Correct, "Intermediate" or "Advanced". If Incorrect, "Beginner".

Return ONLY the JSON object.
`, question, answer)
}

func summaryPrompt(session *domain.InterviewSession, transcript []domain.TranscriptEntry) string {
	body, _ := json.MarshalIndent(transcript, "", "  ")
	return fmt.Sprintf(`
You are an expert career coach summarizing an Excel mock interview.

Candidate's final score: %d out of %d

Full interview transcript:
%s

Provide the following in a single JSON object only, with no text outside the JSON.
Use a professional, constructive and encouraging tone, 2-3 sentences per field.
1. "strengths": what the candidate did well, including patterns of correct answers or good approaches.
2. "areas_for_improvement": specific Excel topics or skills to practice.

Return ONLY a valid JSON object with these fields.
`, session.CorrectCount, session.QuestionCount, body)
}
