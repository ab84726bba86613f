package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single generator invocation.
const DefaultTimeout = 30 * time.Second

// exitNoDefaultExport is the runner script's exit code for modules without a
// callable default export.
const exitNoDefaultExport = 3

// runnerScript imports the generator module, invokes its default export with the
// entry identifier, awaits the result and writes it as JSON to the result file.
// Standard output stays free for the generator's own logging.
const runnerScript = `import { writeFileSync } from 'node:fs'
import { pathToFileURL } from 'node:url'

const [modulePath, entryId, resultPath] = process.argv.slice(2)
const mod = await import(pathToFileURL(modulePath).href)
if (typeof mod.default !== 'function') {
  process.stderr.write('default export is not a function')
  process.exit(3)
}
const result = await mod.default(entryId)
writeFileSync(resultPath, JSON.stringify(result === undefined ? null : result))
`

// ScriptRunner loads generator modules with an external JavaScript runtime.
type ScriptRunner struct {
	nodePath string
	timeout  time.Duration
}

// NewScriptRunner locates the JavaScript runtime. nodePath may be empty to search
// PATH and common installation directories.
func NewScriptRunner(nodePath string, timeout time.Duration) (*ScriptRunner, error) {
	if nodePath == "" {
		var err error
		nodePath, err = exec.LookPath("node")
		if err != nil {
			commonPaths := []string{
				"/usr/local/bin/node",
				"/usr/bin/node",
				"/opt/homebrew/bin/node",
				"/home/linuxbrew/.linuxbrew/bin/node",
			}
			nodePath = ""
			for _, path := range commonPaths {
				if _, err := os.Stat(path); err == nil {
					nodePath = path
					break
				}
			}
			if nodePath == "" {
				return nil, fmt.Errorf("node is required to run content generators. Install from https://nodejs.org")
			}
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ScriptRunner{nodePath: nodePath, timeout: timeout}, nil
}

// Generate runs the module at ref and normalizes its result.
func (s *ScriptRunner) Generate(ctx context.Context, entryID, ref string) (map[string]string, error) {
	if _, err := os.Stat(ref); err != nil {
		return nil, &ConfigError{EntryID: entryID, Reference: ref, Reason: fmt.Sprintf("cannot load module: %v", err)}
	}

	tmpDir, err := os.MkdirTemp("", "pkgkit-generator-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	scriptPath := filepath.Join(tmpDir, "run.mjs")
	if err := os.WriteFile(scriptPath, []byte(runnerScript), 0600); err != nil {
		return nil, fmt.Errorf("failed to write generator runner: %w", err)
	}

	resultPath := filepath.Join(tmpDir, "result.json")

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.nodePath, scriptPath, ref, entryID, resultPath) //nolint:gosec // nodePath comes from configuration
	cmd.Dir = filepath.Dir(ref)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("generator", ref).Str("entry", entryID).Msg("Running content generator")
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("generator %s timed out after %s", ref, s.timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == exitNoDefaultExport {
			return nil, &ConfigError{EntryID: entryID, Reference: ref, Reason: "module has no callable default export"}
		}
		msg := cleanRunnerError(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return nil, fmt.Errorf("generator %s failed for entry %q: %s", ref, entryID, msg)
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.Debug().Str("generator", ref).Str("entry", entryID).Msg(out)
	}

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("generator %s produced no result for entry %q: %w", ref, entryID, err)
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &ConfigError{EntryID: entryID, Reference: ref, Reason: fmt.Sprintf("output is not serializable: %v", err)}
	}
	return Expand(entryID, ref, result)
}

// cleanRunnerError drops the runner's own stack frames from a runtime error.
func cleanRunnerError(errMsg string) string {
	var relevant []string
	for _, line := range strings.Split(errMsg, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" || strings.Contains(line, "run.mjs") || strings.Contains(line, "node:internal") {
			continue
		}
		relevant = append(relevant, line)
	}
	return strings.TrimSpace(strings.Join(relevant, "\n"))
}
