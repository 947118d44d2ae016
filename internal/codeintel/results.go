// ABOUTME: Typed outcomes of the semantic operations: update, typecheck, run-tests and run
// ABOUTME: Best-effort views reconstructed from tool output; never authoritative

package codeintel

// ProjectContext names the codebase location an operation runs against.
type ProjectContext struct {
	ProjectName string `json:"projectName"`
	BranchName  string `json:"branchName"`
}

// UpdateResult is the outcome of saving definitions to the codebase.
type UpdateResult struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Errors  []string `json:"errors"`
}

// WatchResult is an evaluated watch expression (`> expr`) from a scratch file.
type WatchResult struct {
	Line       int    `json:"lineNumber"`
	Expression string `json:"expression"`
	Result     string `json:"result"`
}

// TestResult is one named test outcome.
type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// TypecheckResult is the outcome of typechecking source text.
type TypecheckResult struct {
	Success bool          `json:"success"`
	Output  string        `json:"output"`
	Errors  []string      `json:"errors"`
	Watches []WatchResult `json:"watchResults"`
	Tests   []TestResult  `json:"testResults"`
}

// RunTestsResult is the outcome of running the tests in a namespace.
type RunTestsResult struct {
	Success bool         `json:"success"`
	Output  string       `json:"output"`
	Errors  []string     `json:"errors"`
	Tests   []TestResult `json:"tests"`
}

// Passed counts passing tests.
func (r RunTestsResult) Passed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Passed {
			n++
		}
	}
	return n
}

// RunResult is the outcome of running a main function.
type RunResult struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Stdout  string   `json:"stdout"`
	Stderr  string   `json:"stderr"`
	Errors  []string `json:"errors"`
}
