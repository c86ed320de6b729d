package cmd

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/testutil"
)

func TestRunValidate_WithAdvisory(t *testing.T) {
	agent := &testutil.MockAgent{}
	agent.Reply(`{"valid": true, "type": "select", "is_destructive": false, "security_risk": "low", "message": "Reads one table"}`)

	a, out := newTestApp(t, agent)

	err := runValidate(context.Background(), a, "SELECT email FROM users;", true, formatter.FormatText)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Local rules: passed")
	assert.Contains(t, out.String(), "valid=true type=select destructive=false risk=low")
	assert.Contains(t, out.String(), "Reads one table")
}

func TestRunValidate_LocalOnly(t *testing.T) {
	agent := &testutil.MockAgent{}
	a, out := newTestApp(t, agent)

	err := runValidate(context.Background(), a, "DROP TABLE users", false, formatter.FormatText)
	assert.True(t, stderrors.Is(err, errReported))

	assert.Equal(t, "Local rules: rejected: matches denylisted pattern DROP\n", out.String())
	agent.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunValidate_AdvisoryNeverOverridesRules(t *testing.T) {
	agent := &testutil.MockAgent{}
	agent.Reply(`{"valid": true, "type": "select", "is_destructive": false, "security_risk": "low"}`)

	a, out := newTestApp(t, agent)

	err := runValidate(context.Background(), a, "SELECT * FROM users WHERE name = '' OR '1'='1'", true, formatter.FormatJSON)
	assert.True(t, stderrors.Is(err, errReported))

	assert.Contains(t, out.String(), `"safe": false`)
	assert.Contains(t, out.String(), `"valid": true`)
}

func TestRunValidate_EmptyStatement(t *testing.T) {
	a, _ := newTestApp(t, nil)

	err := runValidate(context.Background(), a, " ; ", false, formatter.FormatText)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}
