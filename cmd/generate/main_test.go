package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/generation"
)

func TestCommandParsesDriverFlags(t *testing.T) {
	var (
		gotProvider string
		gotOpts     generation.Options
	)
	cmd := newCommand(func(_ context.Context, provider string, opts generation.Options, stdout io.Writer) error {
		gotProvider = provider
		gotOpts = opts
		_, err := io.WriteString(stdout, "ok\n")
		return err
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--style", "pashmina", "--provider", "qwen", "--color", "sage",
		"--amazon", "--caption", "--prompt", "smiling, outdoors",
		"--style-image", "a.png", "--style-image", "b.jpg",
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Equal(t, "qwen", gotProvider)
	assert.Equal(t, generation.Options{
		Style:       "pashmina",
		Color:       "sage",
		Amazon:      true,
		Caption:     true,
		Prompt:      "smiling, outdoors",
		StyleImages: []string{"a.png", "b.jpg"},
	}, gotOpts)
	assert.Equal(t, "ok\n", out.String())
}

func TestCommandRequiresStyle(t *testing.T) {
	called := false
	cmd := newCommand(func(context.Context, string, generation.Options, io.Writer) error {
		called = true
		return nil
	})
	cmd.SetArgs([]string{"--provider", "gemini"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.ExecuteContext(context.Background()))
	assert.False(t, called)
}
