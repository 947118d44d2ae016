// ABOUTME: On-demand RPC client lifecycle and the serialized semantic operations
// ABOUTME: The client is reused across calls and replaced after any transport failure

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mauromedda/ucm-bridge/internal/codeintel"
	"github.com/mauromedda/ucm-bridge/internal/mcp"
	"github.com/mauromedda/ucm-bridge/internal/session"
)

// ErrMissingTools is returned when the RPC server does not offer every
// tool the semantic operations need.
var ErrMissingTools = errors.New("RPC server is missing required tools")

// spawnRPC starts the tool in RPC mode.
func (m *Manager) spawnRPC(ctx context.Context) (mcp.Transport, error) {
	bin, env, err := session.ToolCommand(m.cfg.Tool.Binary, m.cfg.Tool.ExtraPath, m.cfg.Tool.Env)
	if err != nil {
		return nil, fmt.Errorf("starting RPC server: %w", err)
	}
	return mcp.NewStdioTransport(ctx, bin, m.cfg.Tool.RPCArgs, env)
}

// CodeIntel returns a service over the shared RPC client, spawning and
// connecting it on first use. Calls made through it are not serialized
// with the Manager's own operations.
func (m *Manager) CodeIntel(ctx context.Context) (*codeintel.Service, error) {
	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()
	c, err := m.clientLocked(ctx)
	if err != nil {
		return nil, err
	}
	return codeintel.New(c), nil
}

func (m *Manager) clientLocked(ctx context.Context) (*mcp.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	tr, err := m.dialRPC(ctx)
	if err != nil {
		return nil, err
	}
	c := mcp.NewClient(tr)
	if err := c.Connect(ctx); err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("connecting RPC server: %w", err)
	}
	if err := checkTools(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	m.client = c
	return c, nil
}

// checkTools fails when the server lacks any of codeintel.RequiredTools.
func checkTools(ctx context.Context, c *mcp.Client) error {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing RPC tools: %w", err)
	}
	offered := make(map[string]bool, len(tools))
	for _, t := range tools {
		offered[t.Name] = true
	}
	var missing []string
	for _, name := range codeintel.RequiredTools {
		if !offered[name] {
			missing = append(missing, name)
		}
	}
	info := c.ServerInfo()
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s %s lacks %s", ErrMissingTools, info.Name, info.Version, strings.Join(missing, ", "))
	}
	logger.Debug("RPC server %s %s offers %d tools", info.Name, info.Version, len(tools))
	return nil
}

// withService runs fn with the RPC lock held and drops the client when fn
// fails at the transport level, so the next call respawns it. An
// incomplete context fails before the server is spawned.
func (m *Manager) withService(ctx context.Context, pc codeintel.ProjectContext, fn func(*codeintel.Service) error) error {
	if err := pc.Validate(); err != nil {
		return err
	}
	m.rpcMu.Lock()
	defer m.rpcMu.Unlock()

	c, err := m.clientLocked(ctx)
	if err != nil {
		return err
	}
	err = fn(codeintel.New(c))
	if mcp.IsTransportError(err) {
		logger.Warn("RPC transport failed, dropping client: %v", err)
		_ = c.Close()
		m.client = nil
	}
	return err
}

// resolve fills an empty project context from the running session.
func (m *Manager) resolve(pc codeintel.ProjectContext) codeintel.ProjectContext {
	if pc.ProjectName != "" || pc.BranchName != "" {
		return pc
	}
	s := m.Session()
	if s == nil {
		return pc
	}
	ctx := s.Context()
	return codeintel.ProjectContext{ProjectName: ctx.Project, BranchName: ctx.Branch}
}

// Update saves code to the codebase.
func (m *Manager) Update(ctx context.Context, pc codeintel.ProjectContext, code string) (res codeintel.UpdateResult, err error) {
	pc = m.resolve(pc)
	err = m.withService(ctx, pc, func(s *codeintel.Service) error {
		res, err = s.Update(ctx, pc, code)
		return err
	})
	return res, err
}

// Typecheck typechecks code and evaluates its watches and inline tests.
func (m *Manager) Typecheck(ctx context.Context, pc codeintel.ProjectContext, code string) (res codeintel.TypecheckResult, err error) {
	pc = m.resolve(pc)
	err = m.withService(ctx, pc, func(s *codeintel.Service) error {
		res, err = s.Typecheck(ctx, pc, code)
		return err
	})
	return res, err
}

// RunTests runs the tests under subnamespace.
func (m *Manager) RunTests(ctx context.Context, pc codeintel.ProjectContext, subnamespace string) (res codeintel.RunTestsResult, err error) {
	pc = m.resolve(pc)
	err = m.withService(ctx, pc, func(s *codeintel.Service) error {
		res, err = s.RunTests(ctx, pc, subnamespace)
		return err
	})
	return res, err
}

// Run runs function with args.
func (m *Manager) Run(ctx context.Context, pc codeintel.ProjectContext, function string, args []string) (res codeintel.RunResult, err error) {
	pc = m.resolve(pc)
	err = m.withService(ctx, pc, func(s *codeintel.Service) error {
		res, err = s.Run(ctx, pc, function, args)
		return err
	})
	return res, err
}

// View returns the source of the named definitions.
func (m *Manager) View(ctx context.Context, pc codeintel.ProjectContext, names []string) (src string, err error) {
	pc = m.resolve(pc)
	err = m.withService(ctx, pc, func(s *codeintel.Service) error {
		src, err = s.View(ctx, pc, names)
		return err
	})
	return src, err
}
