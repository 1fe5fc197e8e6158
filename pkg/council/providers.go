package council

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/agentfleet/substrate/pkg/config"
)

// cliProvider describes how to invoke one provider binary. Args entries may
// carry a {prompt} placeholder substituted at query time.
type cliProvider struct {
	command string
	args    []string
	env     map[string]string
}

var cliProviders = map[string]cliProvider{
	"claude": {
		command: "claude",
		args:    []string{"-p", "{prompt}", "--print"},
		// Clearing the API key forces OAuth/subscription auth.
		env: map[string]string{"ANTHROPIC_API_KEY": ""},
	},
	"codex": {
		command: "codex",
		args:    []string{"{prompt}"},
	},
	"gemini": {
		command: "gemini",
		args:    []string{"-p", "{prompt}"},
	},
}

// providerOrder fixes the reporting order for availability listings.
var providerOrder = []string{"claude", "codex", "gemini"}

const binaryCacheTTL = 30 * time.Second

// CLIClient queries council providers through their locally installed CLIs.
// Binary lookups are cached briefly so repeated availability checks stay
// cheap.
type CLIClient struct {
	cfg      config.CouncilConfig
	binCache *cache.Cache
	lookPath func(file string) (string, error)
}

// NewCLIClient builds a client bound to the per-provider timeouts in cfg.
func NewCLIClient(cfg config.CouncilConfig) *CLIClient {
	return &CLIClient{
		cfg:      cfg,
		binCache: cache.New(binaryCacheTTL, time.Minute),
		lookPath: exec.LookPath,
	}
}

// AvailableProviders reports which provider CLIs are installed, in the fixed
// claude, codex, gemini order.
func (c *CLIClient) AvailableProviders() []string {
	available := []string{}
	for _, name := range providerOrder {
		if c.installed(cliProviders[name].command) {
			available = append(available, name)
		}
	}
	return available
}

// Query runs one provider CLI with the prompt and returns its trimmed
// stdout. A zero timeout falls back to the provider's configured default.
func (c *CLIClient) Query(ctx context.Context, provider, prompt string, timeout time.Duration) (string, error) {
	spec, ok := cliProviders[provider]
	if !ok {
		return "", UnavailableError("Unknown provider: %s", provider)
	}
	if !c.installed(spec.command) {
		return "", UnavailableError("%s CLI not installed", provider)
	}

	if provider == "gemini" {
		prompt = transformGeminiPrompt(prompt)
	}
	if timeout <= 0 {
		timeout = c.cfg.TimeoutFor(provider)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, spec.command, buildArgs(spec.args, prompt)...)
	if len(spec.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", TimeoutError("Timeout after %ds", int(timeout.Seconds()))
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				msg = fmt.Sprintf("Exit code %d", exitErr.ExitCode())
			} else {
				msg = err.Error()
			}
		}
		return "", FailureError("%s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *CLIClient) installed(command string) bool {
	if hit, ok := c.binCache.Get(command); ok {
		return hit.(bool)
	}
	_, err := c.lookPath(command)
	c.binCache.SetDefault(command, err == nil)
	return err == nil
}

// buildArgs substitutes the prompt into the arg template.
func buildArgs(template []string, prompt string) []string {
	args := make([]string, len(template))
	for i, a := range template {
		args[i] = strings.ReplaceAll(a, "{prompt}", prompt)
	}
	return args
}

// transformGeminiPrompt drops lines that look like absolute file paths so
// the gemini CLI does not try to resolve them.
func transformGeminiPrompt(prompt string) string {
	lines := strings.Split(prompt, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "/") && strings.Contains(line, ".") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
