package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mdm-console/mdm-console/cmd/mdmctl/cli"
)

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, cli.ExitUsage, code)
	require.Contains(t, stderr.String(), "usage: mdmctl")
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("MDM_SESSION_FILE", filepath.Join(t.TempDir(), "session.yaml"))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"frobnicate"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, cli.ExitUsage, code)
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)
}

func TestRunProtectedCommandWithoutSession(t *testing.T) {
	t.Setenv("MDM_SESSION_FILE", filepath.Join(t.TempDir(), "session.yaml"))
	t.Setenv("MDM_SESSION_REDIS_ADDR", "")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"roles"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, cli.ExitDenied, code)
	require.Contains(t, stderr.String(), "Access Denied")
}

func TestRunCreateRoleRejectsBadIDs(t *testing.T) {
	t.Setenv("MDM_SESSION_FILE", filepath.Join(t.TempDir(), "session.yaml"))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"create-role", "-name", "Ops", "-permissions", "1,x"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, cli.ExitUsage, code)
	require.Contains(t, stderr.String(), `invalid permission id "x"`)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 3, 1 ,,7")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 1, 7}, ids)

	ids, err = parseIDs("")
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = parseIDs("0")
	require.Error(t, err)
}
