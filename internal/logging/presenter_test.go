// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"testing"

	apperr "agentfit/cli/internal/errors"
)

func TestPresentError(t *testing.T) {
	tests := []struct {
		name    string
		context string
		err     error
		want    string
	}{
		{"nil", "x", nil, ""},
		{"masked", "agentfit", errors.New("dial postgres://app:s3cret@db:5432/shop failed"), "agentfit: dial postgres://*:*@db:5432/shop failed"},
		{"no context", "", errors.New("boom"), "boom"},
		{"config hint", "agentfit", apperr.New(apperr.ConfigError, "no catalog"), "agentfit: CONFIG_ERROR: no catalog" + configHint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PresentError(tt.context, tt.err); got != tt.want {
				t.Errorf("PresentError() = %q, want %q", got, tt.want)
			}
		})
	}
}
