package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"plain", New("boom"), CategoryUnknown},
		{"sentinel", ErrSeriesNotFound, CategoryNotFound},
		{"wrapped", Wrapf(ErrTimeout, "chunk %d", 3), CategoryUpstream},
		{"constructor", NewInvalidValue("to", "x", "bad"), CategoryValidation},
		{"double wrap", fmt.Errorf("parse: %w: %w", ErrInvalidConfig, New("yaml")), CategoryValidation},
		{"joined", Join(New("a"), Wrap(ErrDatabase, "write")), CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewNotFound("records of series", "x"), http.StatusNotFound},
		{Wrap(ErrInvalidRange, "from after to"), http.StatusBadRequest},
		{ErrAlreadyRunning, http.StatusConflict},
		{ErrTimeout, http.StatusGatewayTimeout},
		{NewUnexpectedStatus(503), http.StatusBadGateway},
		{Wrap(ErrDatabase, "query"), http.StatusInternalServerError},
		{New("unclassified"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorToStatus(tt.err); got != tt.want {
			t.Errorf("ErrorToStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should be nil")
	}

	v.AddMissing("metering_point")
	v.Add(nil)
	if v.Error() != "metering_point: missing required field" {
		t.Errorf("single error message = %q", v.Error())
	}

	v.AddField("poll.interval", "must be at least 1m")
	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !Is(err, ErrMissingField) || !Is(err, ErrInvalidConfig) {
		t.Error("collected sentinels not reachable through Is")
	}
	if !IsValidation(err) {
		t.Error("collector should classify as validation")
	}
	if len(v.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(v.Errors))
	}
}
