// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"plain", errors.New("boom"), 1},
		{"exit code", &ExitError{Code: 3, Err: errors.New("usage")}, 3},
		{"wrapped exit code", fmt.Errorf("run: %w", &ExitError{Code: 4, Err: errors.New("lost")}), 4},
		{"zero exit code", &ExitError{Err: errors.New("zero")}, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			if code := report(&buffer, test.err); code != test.code {
				t.Errorf("code = %d, want %d", code, test.code)
			}
			if want := "error: " + test.err.Error() + "\n"; buffer.String() != want {
				t.Errorf("output = %q, want %q", buffer.String(), want)
			}
		})
	}
}
