package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind tags the variant held by an AnswerValue.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindIndex
	KindIndices
	KindNumber
	KindText
)

// AnswerValue holds a submitted answer: an option index, a set or permutation of
// indices, a number, or free text. It encodes to the bare JSON value.
type AnswerValue struct {
	Kind    ValueKind
	Index   int
	Indices []int
	Number  float64
	Text    string
}

func IndexValue(i int) AnswerValue { return AnswerValue{Kind: KindIndex, Index: i} }
func IndicesValue(v ...int) AnswerValue { return AnswerValue{Kind: KindIndices, Indices: v} }
func NumberValue(n float64) AnswerValue { return AnswerValue{Kind: KindNumber, Number: n} }
func TextValue(s string) AnswerValue { return AnswerValue{Kind: KindText, Text: s} }

// ExpectedKind returns the value variant a question type accepts.
func (t QuestionType) ExpectedKind() ValueKind {
	switch t {
	case TypeSingleChoice:
		return KindIndex
	case TypeMultiSelect, TypeRanking:
		return KindIndices
	case TypeScale:
		return KindNumber
	case TypePhraseCloud, TypeOpenText, TypeQA:
		return KindText
	}
	return KindNone
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindIndex:
		return json.Marshal(v.Index)
	case KindIndices:
		if v.Indices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Indices)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindText:
		return json.Marshal(v.Text)
	}
	return []byte("null"), nil
}

// UnmarshalJSON infers the variant from the JSON shape. Whole numbers decode as
// KindIndex; use DecodeAnswer when the question type is known.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
	case '[':
		var idx []int
		if err := json.Unmarshal(data, &idx); err != nil {
			return err
		}
		*v = IndicesValue(idx...)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if n == math.Trunc(n) && !bytes.ContainsAny(data, ".eE") {
			*v = IndexValue(int(n))
		} else {
			*v = NumberValue(n)
		}
	}
	return nil
}

// DecodeAnswer parses raw JSON into the variant expected by the question type.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (AnswerValue, error) {
	var v AnswerValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return AnswerValue{}, fmt.Errorf("%w: %v", ErrAnswerTypeMismatch, err)
	}
	want := t.ExpectedKind()
	if want == KindNumber && v.Kind == KindIndex {
		v = NumberValue(float64(v.Index))
	}
	if v.Kind != want {
		return AnswerValue{}, ErrAnswerTypeMismatch
	}
	return v, nil
}
