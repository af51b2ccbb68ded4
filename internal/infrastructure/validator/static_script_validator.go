package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

const (
	RuleImport = "denied_import"
	RuleCall   = "denied_call"
	RuleDunder = "dunder_access"
	RuleAttr   = "denied_attribute"
)

// DeniedModules may not be imported by generated plotting code.
var DeniedModules = []string{
	"os", "sys", "subprocess", "socket", "shutil", "ctypes", "importlib",
	"multiprocessing", "threading", "pickle", "marshal", "requests", "urllib",
	"http", "ftplib", "smtplib", "telnetlib", "pathlib", "builtins", "signal",
	"pty", "asyncio",
}

var DeniedCalls = []string{
	"eval", "exec", "compile", "open", "input", "breakpoint", "__import__",
	"globals", "locals", "getattr", "setattr", "delattr", "vars",
}

var allowedDunders = []string{"__name__", "__main__", "__init__", "__file__"}

// attrAllowed are denied modules whose names are also common attributes of
// plotting libraries (scipy.signal).
var attrAllowed = []string{"signal"}

var (
	// An import may follow a compound statement header such as "if x:".
	importRe     = regexp.MustCompile(`(?:^|:)\s*import\s+(.+)$`)
	fromImportRe = regexp.MustCompile(`(?:^|:)\s*from\s+([\w.]+)\s+import\b`)
	dunderRe     = regexp.MustCompile(`__\w+?__`)
)

type StaticScriptValidator struct {
	deniedModules []string
	callRe        *regexp.Regexp
	attrRe        *regexp.Regexp
}

var _ repository.ScriptValidator = (*StaticScriptValidator)(nil)

// NewStaticScriptValidator denies DeniedModules plus any extra modules given.
func NewStaticScriptValidator(extraDenied ...string) *StaticScriptValidator {
	modules := slices.Clone(DeniedModules)
	for _, m := range extraDenied {
		if m = strings.TrimSpace(m); m != "" && !slices.Contains(modules, m) {
			modules = append(modules, m)
		}
	}

	quoted := make([]string, len(DeniedCalls))
	for i, c := range DeniedCalls {
		quoted[i] = regexp.QuoteMeta(c)
	}
	// A call not preceded by an identifier char or a dot, so plt.open-like
	// attribute calls are not matched.
	callRe := regexp.MustCompile(`(?:^|[^\w.])(` + strings.Join(quoted, "|") + `)\s*\(`)

	var attrs []string
	for _, m := range modules {
		if !slices.Contains(attrAllowed, m) {
			attrs = append(attrs, regexp.QuoteMeta(m))
		}
	}
	// Reaching a denied module through another one, e.g. matplotlib.os.
	attrRe := regexp.MustCompile(`\.\s*(` + strings.Join(attrs, "|") + `)\b`)

	return &StaticScriptValidator{
		deniedModules: modules,
		callRe:        callRe,
		attrRe:        attrRe,
	}
}

func (v *StaticScriptValidator) Validate(code string) entity.ValidationResult {
	result := entity.ValidationResult{Passed: true}
	add := func(line int, rule, msg string) {
		result.Findings = append(result.Findings, entity.ValidationFinding{Line: line, Rule: rule, Message: msg})
	}

	for _, ll := range logicalLines(code) {
		line := ll.text
		if strings.TrimSpace(line) == "" {
			continue
		}

		for _, stmt := range splitStatements(line) {
			for _, mod := range importedModules(stmt) {
				root := strings.SplitN(mod, ".", 2)[0]
				if slices.Contains(v.deniedModules, root) {
					add(ll.number, RuleImport, fmt.Sprintf("import of module %q is not allowed", mod))
				}
			}
		}

		for _, m := range v.callRe.FindAllStringSubmatch(line, -1) {
			add(ll.number, RuleCall, fmt.Sprintf("call to %s() is not allowed", m[1]))
		}

		for _, m := range v.attrRe.FindAllStringSubmatch(line, -1) {
			add(ll.number, RuleAttr, fmt.Sprintf("access to module %q through an attribute is not allowed", m[1]))
		}

		for _, d := range dunderRe.FindAllString(line, -1) {
			if slices.Contains(allowedDunders, d) || d == "__import__" {
				continue
			}
			add(ll.number, RuleDunder, fmt.Sprintf("access to %s is not allowed", d))
		}
	}

	result.Passed = len(result.Findings) == 0
	if result.Passed {
		metrics.IncValidationRun("pass")
	} else {
		metrics.IncValidationRun("fail")
	}
	return result
}

type logicalLine struct {
	number int // first physical line, 1-based
	text   string
}

// logicalLines strips comments and joins backslash continuations.
func logicalLines(code string) []logicalLine {
	var (
		out     []logicalLine
		pending strings.Builder
		start   int
	)
	for i, raw := range strings.Split(code, "\n") {
		line := strings.TrimRight(stripComment(raw), " \t\r")
		if pending.Len() == 0 {
			start = i + 1
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		out = append(out, logicalLine{number: start, text: pending.String()})
		pending.Reset()
	}
	if pending.Len() > 0 {
		out = append(out, logicalLine{number: start, text: pending.String()})
	}
	return out
}

// splitStatements splits line on semicolons outside string literals.
func splitStatements(line string) []string {
	var (
		stmts []string
		quote rune
		last  int
	)
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			stmts = append(stmts, line[last:i])
			last = i + 1
		}
	}
	return append(stmts, line[last:])
}

// importedModules lists the module paths named by an import statement.
func importedModules(line string) []string {
	if m := fromImportRe.FindStringSubmatch(line); m != nil {
		return []string{m[1]}
	}
	m := importRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	var mods []string
	for _, item := range strings.Split(m[1], ",") {
		fields := strings.Fields(item) // "numpy as np"
		if len(fields) > 0 {
			mods = append(mods, fields[0])
		}
	}
	return mods
}

// stripComment drops a trailing # comment that is outside string literals.
func stripComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '#':
			return line[:i]
		}
	}
	return line
}

// FormatFindings renders findings one per line for error messages and logs.
func FormatFindings(findings []entity.ValidationFinding) string {
	var b strings.Builder
	for i, f := range findings {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "line %d: %s", f.Line, f.Message)
	}
	return b.String()
}
