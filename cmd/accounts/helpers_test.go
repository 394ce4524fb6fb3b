// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/holomush/accounts/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// isolateEnv keeps tests away from the developer's config and environment.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvSMTPPassword, "")
	t.Setenv(config.EnvSecretKey, testSecret)
	return dir
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}
