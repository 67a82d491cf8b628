package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseQuizAcceptsMinimalJSON(t *testing.T) {
	raw := `{"title":"Capitals","questions":[{"id":"1","type":"multiple-choice","question":"Capital of France?","options":["London","Berlin","Paris"],"correctAnswer":2}]}`
	q, err := ParseQuiz("capitals.json", []byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Title != "Capitals" || len(q.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", q)
	}
	if q.Questions[0].Limit() != DefaultTimeLimit {
		t.Fatalf("expected default limit, got %d", q.Questions[0].Limit())
	}
}

func TestParseQuizYAML(t *testing.T) {
	raw := `
title: Warmup
questions:
  - id: w1
    type: word-cloud
    question: One word for today?
    timeLimit: 20
`
	q, err := ParseQuiz("warmup.yaml", []byte(raw))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if q.Questions[0].Type != TypePhraseCloud || q.Questions[0].TimeLimit != 20 {
		t.Fatalf("unexpected question %+v", q.Questions[0])
	}
}

func TestParseQuizRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no title":      `{"questions":[]}`,
		"blank title":   `{"title":"  ","questions":[]}`,
		"no questions":  `{"title":"x"}`,
		"not sequence":  `{"title":"x","questions":{"id":"1"}}`,
		"unknown type":  `{"title":"x","questions":[{"id":"1","type":"essay"}]}`,
		"missing id":    `{"title":"x","questions":[{"type":"open-ended"}]}`,
		"one option":    `{"title":"x","questions":[{"id":"1","type":"ranking","options":["a"]}]}`,
		"bad correct":   `{"title":"x","questions":[{"id":"1","type":"multiple-choice","options":["a","b"],"correctAnswer":5}]}`,
		"duplicate ids": `{"title":"x","questions":[{"id":"1","type":"open-ended"},{"id":"1","type":"q-and-a"}]}`,
		"bad scale":     `{"title":"x","questions":[{"id":"1","type":"scales","scaleMin":5,"scaleMax":1}]}`,
	}
	for name, raw := range cases {
		if _, err := ParseQuiz("quiz.json", []byte(raw)); !errors.Is(err, ErrInvalidQuiz) {
			t.Fatalf("%s: expected ErrInvalidQuiz, got %v", name, err)
		}
	}
}

func TestNormalizeClampsTimeLimits(t *testing.T) {
	q := Quiz{Title: "t", Questions: []Question{
		{ID: "a", Type: TypeOpenText},
		{ID: "b", Type: TypeOpenText, TimeLimit: 1},
		{ID: "c", Type: TypeOpenText, TimeLimit: 9000},
	}}
	n := Normalize(q)
	if n.Questions[0].TimeLimit != 30 || n.Questions[1].TimeLimit != 5 || n.Questions[2].TimeLimit != 300 {
		t.Fatalf("unexpected limits %d %d %d", n.Questions[0].TimeLimit, n.Questions[1].TimeLimit, n.Questions[2].TimeLimit)
	}
	if q.Questions[1].TimeLimit != 1 {
		t.Fatalf("normalize mutated the input")
	}
}

func TestDecodeAnswerByQuestionType(t *testing.T) {
	v, err := DecodeAnswer(TypeSingleChoice, json.RawMessage(`2`))
	if err != nil || v.Kind != KindIndex || v.Index != 2 {
		t.Fatalf("single choice: %+v %v", v, err)
	}
	v, err = DecodeAnswer(TypeRanking, json.RawMessage(`[2,0,1]`))
	if err != nil || v.Kind != KindIndices || len(v.Indices) != 3 {
		t.Fatalf("ranking: %+v %v", v, err)
	}
	v, err = DecodeAnswer(TypeScale, json.RawMessage(`7`))
	if err != nil || v.Kind != KindNumber || v.Number != 7 {
		t.Fatalf("scale: %+v %v", v, err)
	}
	if _, err := DecodeAnswer(TypeSingleChoice, json.RawMessage(`"Paris"`)); !errors.Is(err, ErrAnswerTypeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := DecodeAnswer(TypeOpenText, json.RawMessage(`[1]`)); !errors.Is(err, ErrAnswerTypeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestAnswerValueEncodesBareJSON(t *testing.T) {
	data, err := json.Marshal(Answer{QuestionID: "q", Value: IndicesValue(0, 2)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Answer []int `json:"answer"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Answer) != 2 || decoded.Answer[1] != 2 {
		t.Fatalf("unexpected encoding %s", data)
	}
}

func TestCloneIsDeep(t *testing.T) {
	q := Quiz{Title: "t", Questions: []Question{{ID: "r", Type: TypeRanking, Options: []string{"a", "b"}}}}
	c := q.Clone()
	c.Questions[0].Options[0] = "z"
	if q.Questions[0].Options[0] != "a" {
		t.Fatalf("clone shares option storage")
	}
}
