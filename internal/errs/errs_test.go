package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	t.Parallel()
	err := New(ParseError, "parse trade", errors.New("bad json"))
	if !Is(err, ParseError) {
		t.Fatalf("expected ParseError match")
	}
	if Is(err, ValidationFailure) {
		t.Fatalf("unexpected ValidationFailure match")
	}
}

func TestIsUnwrapsThroughFmtErrorf(t *testing.T) {
	t.Parallel()
	base := New(TransientUpstream, "fetch book", errors.New("dial tcp: timeout"))
	wrapped := fmt.Errorf("wsfeed heal: %w", base)
	if !Is(wrapped, TransientUpstream) {
		t.Fatalf("expected TransientUpstream to be found through fmt.Errorf wrap")
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	t.Parallel()
	err := New(Throttled, "fetch trades page", nil)
	got := err.Error()
	if got != "fetch trades page: throttled" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := New(FatalConfig, "load config", cause)
	if errors.Unwrap(err) != cause {
		t.Fatalf("expected Unwrap to return cause")
	}
}
