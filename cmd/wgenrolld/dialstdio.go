package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"

	"wgenroll/internal/config"
)

// dialStdioCmd bridges stdio to the daemon socket so a remote CLI can reach
// it over ssh without exposing TCP.
func dialStdioCmd(cfg *config.Config) *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:    "dial-stdio",
		Short:  "Proxy stdio to the daemon socket",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if socketPath == "" {
				socketPath = cfg.Daemon.Socket
			}
			return runDialStdio(cmd.Context(), socketPath, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "Daemon unix socket path (default from config)")
	return cmd
}

func runDialStdio(ctx context.Context, socketPath string, stdin io.Reader, stdout io.Writer) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to socket %q: %w", socketPath, err)
	}
	defer conn.Close()

	upstream := make(chan error, 1)
	go func() {
		_, err := io.Copy(conn, stdin)
		if uc, ok := conn.(*net.UnixConn); ok {
			_ = uc.CloseWrite()
		}
		upstream <- err
	}()

	if _, err := io.Copy(stdout, conn); err != nil {
		return err
	}
	select {
	case err := <-upstream:
		return err
	default:
		// The daemon closed first; stdin may never reach EOF.
		return nil
	}
}
