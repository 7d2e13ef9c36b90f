package basicmath

import (
	"context"
	"fmt"
	"testing"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
)

func fixedIndex(values ...int) func(int) (int, error) {
	i := 0
	return func(int) (int, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func TestStartKeepsAnswerServerSide(t *testing.T) {
	m := New(Config{RandomIndex: fixedIndex(1, 2, 3)})
	s := store.New("member-1")

	props, err := m.RegisterHandler().Start(context.Background(), s, method.Member{ID: "member-1"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	numbers, ok := props["numbers"].([]int)
	if !ok || len(numbers) != 3 || numbers[0] != 2 || numbers[1] != 3 || numbers[2] != 4 {
		t.Fatalf("unexpected numbers %v", props["numbers"])
	}
	if len(props) != 1 {
		t.Fatalf("expected only numbers in props, got %v", props)
	}
	if v, ok := s.StateInt("expected"); !ok || v != 9 {
		t.Fatalf("expected sum 9 in state, got %v %v", v, ok)
	}
}

func TestVerifyAnswers(t *testing.T) {
	m := New(Config{RandomIndex: fixedIndex(4, 4, 4)})
	ctx := context.Background()

	cases := []struct {
		body string
		ok   bool
	}{
		{`{"number":"15"}`, true},
		{`{"number":15}`, true},
		{`{"number":" 15 "}`, true},
		{`{"number":"14"}`, false},
		{`{"number":""}`, false},
		{`{}`, false},
		{`not json`, false},
		{`{"number":"15","extra":1}`, false},
	}

	for _, tc := range cases {
		s := store.New("member-1")
		if _, err := m.LoginHandler().Start(ctx, s, nil); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		res := m.LoginHandler().Verify(ctx, method.NewRequest([]byte(tc.body)), s, nil)
		if res.Successful != tc.ok {
			t.Fatalf("body %s: expected success=%v, got %+v", tc.body, tc.ok, res)
		}
		if !res.Successful && res.Message == "" {
			t.Fatalf("body %s: expected a failure message", tc.body)
		}
	}
}

func TestVerifyWithoutChallengeFails(t *testing.T) {
	m := New(Config{})
	res := m.RegisterHandler().Register(context.Background(), method.NewRequest([]byte(`{"number":"3"}`)), store.New("m"), method.Member{ID: "m"})
	if res.Successful {
		t.Fatal("expected failure without a started challenge")
	}
	if res.Message != method.MessageInvalidSession {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestStartPropagatesRandomFailure(t *testing.T) {
	m := New(Config{RandomIndex: func(int) (int, error) { return 0, fmt.Errorf("entropy exhausted") }})
	if _, err := m.LoginHandler().Start(context.Background(), store.New("m"), nil); err == nil {
		t.Fatal("expected start to fail")
	}
}
