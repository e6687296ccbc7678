// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"unicode/utf8"

	"github.com/fatih/color"
)

// defaultShellTokens returns the platform's default interpreter invocation
// (SPEC_FULL.md "platform-default shell tokens", resolved from
// original_source): POSIX systems run through "sh -cu" (nounset, so an
// unbound variable inside the recipe's own shell script aborts it rather
// than silently expanding empty); Windows runs through PowerShell.
func defaultShellTokens() []string {
	if runtime.GOOS == "windows" {
		return []string{"powershell", "-c"}
	}
	return []string{"sh", "-cu"}
}

var echoColor = color.New(color.FgCyan)

func (e *Engine) echoCommand(cmdLine string) {
	echoColor.Fprintln(os.Stdout, cmdLine)
}

// execShellOp runs one Shell statement. Per §3, a Shell line's own flags are
// XORed with the enclosing recipe's flags, so a recipe can locally invert
// its default echo/pass behavior with a leading @ or -.
func (e *Engine) execShellOp(op Shell, recipeFlags int) error {
	effFlags := op.Flags ^ recipeFlags
	cmdLine := e.Vars.Interpolate(op.Command, true)

	if effFlags&FlagQuiet == 0 {
		e.echoCommand(cmdLine)
	}
	if e.opts.DryRun {
		return nil
	}

	code, err := e.runShellStreamed(cmdLine)
	if err != nil {
		if effFlags&FlagPass != 0 {
			return nil
		}
		return newErrAt(KindExecFailure, e.curFile, e.curLine, "", fmt.Sprintf("command failed: %s: %v", cmdLine, err))
	}
	if code != 0 {
		if effFlags&FlagPass != 0 {
			return nil
		}
		return newErrAt(KindExecFailure, e.curFile, e.curLine, "", fmt.Sprintf("command exited %d: %s", code, cmdLine))
	}
	return nil
}

// execCdOp changes the engine's (and process's) working directory, pushing
// onto the cd history stack whose first entry the invoke_dir builtin reads.
func (e *Engine) execCdOp(op Cd, recipeFlags int) error {
	effFlags := op.Flags ^ recipeFlags
	path := e.Vars.Interpolate(op.Path, true)

	if effFlags&FlagQuiet == 0 {
		e.echoCommand("cd " + path)
	}
	// Cd runs even under --dry-run: unlike Shell, it has no side effect on
	// the outside world worth suppressing, and later recipe lines depend on
	// the resulting working directory.
	if err := os.Chdir(path); err != nil {
		if effFlags&FlagPass != 0 {
			return nil
		}
		return newErrAt(KindCdError, e.curFile, e.curLine, "", fmt.Sprintf("cd %q: %v", path, err))
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = path
	}
	e.cwdHistory = append(e.cwdHistory, cwd)
	return nil
}

// runShellStreamed runs cmdLine through the active shell with stdout/stderr
// connected directly to the process's own (used for Shell statements, which
// are not captured). Recipes run strictly one at a time (§5: no concurrent
// recipe execution), so there is no output-interleaving concern.
func (e *Engine) runShellStreamed(cmdLine string) (int, error) {
	if len(e.shellTokens) == 0 {
		return 0, fmt.Errorf("no shell configured")
	}
	argv := append(append([]string(nil), e.shellTokens[1:]...), cmdLine)
	cmd := exec.Command(e.shellTokens[0], argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = e.Vars.Environ()
	return runAndExitCode(cmd)
}

// runExecExpr runs a backtick expression, capturing stdout for the Exec
// value (§4.E). Non-UTF-8 output is replaced with a sentinel string and a
// warning is logged, rather than handed to the script as invalid text
// (SPEC_FULL.md "non-UTF-8 subprocess output handling").
func (e *Engine) runExecExpr(template string) (Value, error) {
	cmdLine := e.Vars.Interpolate(template, true)
	if len(e.shellTokens) == 0 {
		return Undefined(), fmt.Errorf("no shell configured")
	}
	argv := append(append([]string(nil), e.shellTokens[1:]...), cmdLine)
	cmd := exec.Command(e.shellTokens[0], argv...)
	cmd.Stderr = os.Stderr
	cmd.Env = e.Vars.Environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	code, err := runAndExitCode(cmd)
	if err != nil {
		return Undefined(), newErrAt(KindExecFailure, e.curFile, e.curLine, "", fmt.Sprintf("command failed: %s: %v", cmdLine, err))
	}

	stdout := out.String()
	if !utf8.ValidString(stdout) {
		e.log.V(0).Info("subprocess produced non-UTF-8 output, substituting sentinel", "command", cmdLine)
		stdout = "[Non-UTF-8 Output]"
	}
	return ExecValue(int32(code), stdout), nil
}

func runAndExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
