// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	apperr "agentfit/cli/internal/errors"
)

const configHint = "\n  run 'agentfit targets' to review the active configuration"

// PresentError formats err for the terminal with secrets masked. Configuration
// errors get a pointer to the targets command.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	msg := Mask(err.Error())
	if context != "" {
		msg = context + ": " + msg
	}
	if apperr.KindOf(err) == apperr.ConfigError {
		msg += configHint
	}
	return msg
}
