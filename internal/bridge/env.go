package bridge

import (
	"os"
	"os/exec"
	"strings"
)

// Environment returns the environment for a bridge process: the host
// environment with the terminal capability variables forced on. Later
// entries win in exec, so the overrides are appended.
func Environment(base []string, home string) []string {
	lang := os.Getenv("LANG")
	if lang == "" {
		lang = "en_US.UTF-8"
	}
	if home == "" {
		home = os.Getenv("HOME")
	}

	env := make([]string, 0, len(base)+7)
	for _, kv := range base {
		if !overridden(kv) {
			env = append(env, kv)
		}
	}
	return append(env,
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"FORCE_COLOR=3",
		"LANG="+lang,
		"HOME="+home,
		"CLICOLOR=1",
		"CLICOLOR_FORCE=1",
	)
}

func overridden(kv string) bool {
	key, _, _ := strings.Cut(kv, "=")
	switch key {
	case "TERM", "COLORTERM", "FORCE_COLOR", "LANG", "HOME", "CLICOLOR", "CLICOLOR_FORCE":
		return true
	}
	return false
}

// LoginCommand returns the argv of the user's login shell: $SHELL, then
// bash, then sh.
func LoginCommand() []string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		if p, err := exec.LookPath("bash"); err == nil {
			shell = p
		} else {
			shell = "/bin/sh"
		}
	}
	return []string{shell, "-l"}
}
