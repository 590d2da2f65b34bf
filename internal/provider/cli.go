package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// CLIProvider shells out to a local agent binary. The prompt is passed as the
// last argument and the JSON reply is read from stdout.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

var (
	_ Generator     = (*CLIProvider)(nil)
	_ WordGenerator = (*CLIProvider)(nil)
)

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) complete(ctx context.Context, prompt, schema string) (string, error) {
	fullArgs := append(append([]string{}, p.args...),
		SystemInstruction+"\n"+schemaInstruction(schema)+"\n\n"+prompt)

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...) // #nosec G204

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("cli agent timed out: %w", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("cli agent failed: %w\nOutput: %s", err, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("cli agent failed: %w", err)
	}
	return string(output), nil
}

func (p *CLIProvider) Generate(ctx context.Context, background, message string) (*Reply, error) {
	text, err := p.complete(ctx, Prompt(background, message), ReplySchema)
	if err != nil {
		return nil, err
	}
	return ParseReply(text)
}

func (p *CLIProvider) GenerateWord(ctx context.Context, background, message string) (string, error) {
	text, err := p.complete(ctx, Prompt(background, message), WordSchema)
	if err != nil {
		return "", err
	}
	return ParseWord(text)
}
