package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArgsString(t *testing.T) {
	t.Parallel()

	args := Args{
		Positional: []any{"https://example.com", 42},
		Named:      map[string]any{"url": "https://named.example.com", "depth": 2},
	}

	got, err := args.String(0, "url")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", got)

	got, err = args.String(5, "url")
	require.NoError(t, err)
	require.Equal(t, "https://named.example.com", got)

	_, err = args.String(1, "url")
	require.ErrorContains(t, err, "expected string")

	_, err = args.String(9, "depth")
	require.ErrorContains(t, err, `argument "depth"`)

	_, err = args.String(9, "missing")
	require.ErrorContains(t, err, "missing argument")
}

func TestTaskBuilders(t *testing.T) {
	t.Parallel()

	base := New("link_info", nil, "https://example.com")
	withNamed := base.WithNamed("retry", true).WithID("abc")

	require.Nil(t, base.Args.Named)
	require.Equal(t, true, withNamed.Args.Named["retry"])
	require.Equal(t, "link_info[abc]", withNamed.Label())
	require.Equal(t, "link_info", base.Label())
	require.Equal(t, "anonymous", Task{}.Label())
}

func TestWorkerFaultUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	fault := &WorkerFault{WorkerID: 3, Name: "explode", Value: cause}
	require.ErrorIs(t, fault, cause)
	require.Contains(t, fault.Error(), "worker 3")

	plain := &WorkerFault{Value: "not an error"}
	require.Nil(t, plain.Unwrap())
}

func TestResultOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", Result{}.Outcome())
	require.True(t, Result{}.Succeeded())
	require.Equal(t, "failure", Result{Err: errors.New("x")}.Outcome())
}
