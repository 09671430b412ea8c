// Package cmdutil resolves which daemon a wgenroll command talks to and as
// whom.
package cmdutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wgenroll/config"
	daemonconfig "wgenroll/internal/config"
	"wgenroll/pkg/sdk/client"
)

const (
	envSocket  = "WGENROLL_SOCKET"
	envAddr    = "WGENROLL_ADDR"
	envContext = "WGENROLL_CONTEXT"
	envUser    = "WGENROLL_USER"
	envRole    = "WGENROLL_ROLE"
)

// ConnFlags are the connection flags shared by every remote command.
type ConnFlags struct {
	Context string
	Socket  string
	Addr    string
	User    string
	Role    string
}

func (f *ConnFlags) Bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.Context, "context", "", "Context name to use")
	pf.StringVar(&f.Socket, "socket", "", "Daemon unix socket path")
	pf.StringVar(&f.Addr, "addr", "", "Daemon TCP address (host:port)")
	pf.StringVar(&f.User, "user", "", "User id to act as")
	pf.StringVar(&f.Role, "role", "", "Role to assert (admin, owner)")
}

// Resolve picks the dial target and identity. Resolution order:
//
//  1. --socket / WGENROLL_SOCKET
//  2. --addr / WGENROLL_ADDR
//  3. --context / WGENROLL_CONTEXT
//  4. current-context from the config file
//  5. the default local daemon socket
//
// Identity flags and env vars override whatever the context carries; the
// user falls back to $USER.
func (f *ConnFlags) Resolve() (string, client.Identity, error) {
	var (
		target string
		id     client.Identity
	)

	switch {
	case firstNonEmpty(f.Socket, os.Getenv(envSocket)) != "":
		target = "unix://" + firstNonEmpty(f.Socket, os.Getenv(envSocket))
	case firstNonEmpty(f.Addr, os.Getenv(envAddr)) != "":
		target = firstNonEmpty(f.Addr, os.Getenv(envAddr))
	default:
		cfg, err := config.Load()
		if err != nil {
			return "", client.Identity{}, fmt.Errorf("load config: %w", err)
		}
		name := firstNonEmpty(f.Context, os.Getenv(envContext))
		c, ok := config.Context{}, false
		if name != "" {
			if c, err = cfg.Resolve(name); err != nil {
				return "", client.Identity{}, err
			}
			ok = true
		} else {
			_, c, ok = cfg.Current()
		}
		if ok {
			if target = c.Target(); target == "" {
				return "", client.Identity{}, fmt.Errorf("context %q has no socket or address", firstNonEmpty(name, cfg.CurrentContext))
			}
			id = client.Identity{UserID: c.UserID, Role: c.Role}
		} else {
			target = "unix://" + daemonconfig.DefaultSocketPath()
		}
	}

	id.UserID = firstNonEmpty(f.User, os.Getenv(envUser), id.UserID, os.Getenv("USER"))
	id.Role = firstNonEmpty(f.Role, os.Getenv(envRole), id.Role)
	return target, id, nil
}

// Connect returns an SDK client for the resolved target.
func (f *ConnFlags) Connect() (*client.Client, error) {
	target, id, err := f.Resolve()
	if err != nil {
		return nil, err
	}
	return client.New(target, id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
