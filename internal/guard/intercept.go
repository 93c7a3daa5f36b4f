package guard

import "context"

// gatedTools is the closed set of tool names the guard client vets before
// letting a host agent invoke them. Anything outside this set is always
// allowed; the guard only gates file-mutating tools.
var gatedTools = map[string]bool{
	"write": true,
	"edit":  true,
	"bash":  true,
}

// Decision is the result of an Intercept call.
type Decision struct {
	Block  bool
	Reason string
}

// Intercept decides whether tool, invoked with params, may proceed. For
// write/edit it resolves a target path from the "path" parameter; for bash
// it uses an explicit "path" parameter or falls back to ".". Any failure
// to reach the daemon, any missing discovery, or a false allow decision
// blocks the tool — this never produces a spurious allow.
func (c *Client) Intercept(ctx context.Context, tool string, params map[string]any) Decision {
	if !gatedTools[tool] {
		return Decision{Block: false}
	}

	path := targetPath(tool, params)

	result, err := c.CanWrite(ctx, path)
	if err != nil {
		return Decision{Block: true, Reason: "can_write_check_failed: " + err.Error()}
	}
	if !result.Allow {
		return Decision{Block: true, Reason: result.Reason}
	}
	return Decision{Block: false, Reason: result.Reason}
}

func targetPath(tool string, params map[string]any) string {
	if raw, ok := params["path"].(string); ok && raw != "" {
		return raw
	}
	if tool == "bash" {
		return "."
	}
	return ""
}

// InterceptUnavailable is the fail-closed decision used when discovery
// itself could not find a running daemon. A host agent with no interactive
// surface to report this to must still refuse the tool.
func InterceptUnavailable() Decision {
	return Decision{Block: true, Reason: "missing_teamd_discovery"}
}

// Check discovers the running daemon from env and, on success, runs
// Intercept against it. Discovery failure itself is fail-closed: a host
// agent that cannot even find a daemon is never allowed a spurious allow.
func Check(ctx context.Context, env Environ, tool string, params map[string]any) Decision {
	if !gatedTools[tool] {
		return Decision{Block: false}
	}
	identity, err := Discover(env)
	if err != nil || identity.URL == "" || identity.Token == "" {
		return InterceptUnavailable()
	}
	return NewClient(identity).Intercept(ctx, tool, params)
}
