// ABOUTME: update, typecheck, test, run and view commands over the RPC server
// ABOUTME: Each spawns the server on demand, renders the typed result and exits non-zero on failure

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mauromedda/ucm-bridge/internal/bridge"
	"github.com/mauromedda/ucm-bridge/internal/codeintel"
)

// rpcFlags are shared by every command that talks to the RPC server.
type rpcFlags struct {
	project string
	branch  string
	asJSON  bool
}

func (f *rpcFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.project, "project", "p", os.Getenv("UCM_PROJECT"), "project name (env UCM_PROJECT)")
	cmd.Flags().StringVarP(&f.branch, "branch", "b", os.Getenv("UCM_BRANCH"), "branch name (env UCM_BRANCH)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
}

func (f *rpcFlags) projectContext() codeintel.ProjectContext {
	return codeintel.ProjectContext{ProjectName: f.project, BranchName: f.branch}
}

// withManager runs fn against a Manager that is closed afterwards.
func (a *app) withManager(fn func(*bridge.Manager) error) error {
	m := bridge.New(a.cfg, nil)
	defer func() { _ = m.Close() }()
	return fn(m)
}

// emit prints v as JSON or through render, and turns a failed result into
// an already-reported error.
func emit[T any](w io.Writer, f *rpcFlags, v T, ok bool, render func(io.Writer, T)) error {
	if f.asJSON {
		if err := writeJSON(w, v); err != nil {
			return err
		}
	} else {
		render(w, v)
	}
	if !ok {
		return errReported
	}
	return nil
}

func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func newUpdateCmd(a *app) *cobra.Command {
	var f rpcFlags
	cmd := &cobra.Command{
		Use:   "update FILE",
		Short: "Save the definitions in FILE (or - for stdin) to the codebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(args[0])
			if err != nil {
				return err
			}
			return a.withManager(func(m *bridge.Manager) error {
				res, err := m.Update(cmd.Context(), f.projectContext(), code)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), &f, res, res.Success, renderUpdate)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTypecheckCmd(a *app) *cobra.Command {
	var f rpcFlags
	cmd := &cobra.Command{
		Use:   "typecheck FILE",
		Short: "Typecheck FILE (or - for stdin) and evaluate its watches and tests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(args[0])
			if err != nil {
				return err
			}
			return a.withManager(func(m *bridge.Manager) error {
				res, err := m.Typecheck(cmd.Context(), f.projectContext(), code)
				if err != nil {
					return err
				}
				ok := res.Success
				for _, t := range res.Tests {
					ok = ok && t.Passed
				}
				return emit(cmd.OutOrStdout(), &f, res, ok, renderTypecheck)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTestCmd(a *app) *cobra.Command {
	var f rpcFlags
	cmd := &cobra.Command{
		Use:   "test [namespace]",
		Short: "Run the tests in the codebase, optionally under namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := ""
			if len(args) == 1 {
				ns = args[0]
			}
			return a.withManager(func(m *bridge.Manager) error {
				res, err := m.RunTests(cmd.Context(), f.projectContext(), ns)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), &f, res, res.Success, renderRunTests)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var f rpcFlags
	cmd := &cobra.Command{
		Use:   "run FUNC [ARGS...]",
		Short: "Run FUNC with ARGS",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(func(m *bridge.Manager) error {
				res, err := m.Run(cmd.Context(), f.projectContext(), args[0], args[1:])
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), &f, res, res.Success, renderRun)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newViewCmd(a *app) *cobra.Command {
	var f rpcFlags
	cmd := &cobra.Command{
		Use:   "view NAME...",
		Short: "Print the source of the named definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(func(m *bridge.Manager) error {
				src, err := m.View(cmd.Context(), f.projectContext(), args)
				if err != nil {
					return err
				}
				if f.asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"source": src})
				}
				fmt.Fprintln(cmd.OutOrStdout(), src)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}
