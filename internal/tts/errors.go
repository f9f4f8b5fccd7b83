package tts

import (
	"errors"
	"fmt"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	KindInvalidLanguage ErrorKind = iota + 1
	KindInvalidParameter
	KindIndexLoad
	KindStyleLoad
	KindConfigLoad
	KindInferenceFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidLanguage:
		return "invalid language"
	case KindInvalidParameter:
		return "invalid parameter"
	case KindIndexLoad:
		return "index load failed"
	case KindStyleLoad:
		return "style load failed"
	case KindConfigLoad:
		return "config load failed"
	case KindInferenceFailure:
		return "inference failed"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error is the typed error returned by Pipeline and Service. Stage names the
// graph that failed for KindInferenceFailure.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg += " in " + e.Stage
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of stage or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidLanguage  = &Error{Kind: KindInvalidLanguage}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrIndexLoad        = &Error{Kind: KindIndexLoad}
	ErrStyleLoad        = &Error{Kind: KindStyleLoad}
	ErrConfigLoad       = &Error{Kind: KindConfigLoad}
	ErrInferenceFailure = &Error{Kind: KindInferenceFailure}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

func invalidParameter(format string, args ...any) error {
	return &Error{Kind: KindInvalidParameter, Err: fmt.Errorf(format, args...)}
}

func inferenceFailure(stage string, err error) error {
	return &Error{Kind: KindInferenceFailure, Stage: stage, Err: err}
}

// classify maps leaf-package sentinels to a typed error. Errors that are
// already typed pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := KindOf(err); ok {
		return err
	}

	switch {
	case errors.Is(err, text.ErrInvalidLanguage):
		return &Error{Kind: KindInvalidLanguage, Err: err}
	case errors.Is(err, tokenizer.ErrIndexLoad):
		return &Error{Kind: KindIndexLoad, Err: err}
	case errors.Is(err, voice.ErrStyleLoad):
		return &Error{Kind: KindStyleLoad, Err: err}
	case errors.Is(err, voice.ErrUnknownVoice):
		return &Error{Kind: KindInvalidParameter, Err: err}
	case errors.Is(err, config.ErrModelConfig):
		return &Error{Kind: KindConfigLoad, Err: err}
	default:
		return err
	}
}
