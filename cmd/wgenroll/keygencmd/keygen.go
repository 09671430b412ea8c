package keygencmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Cmd returns the "wgenroll keygen" command.
func Cmd() *cobra.Command {
	var publicOnly bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a WireGuard key pair locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return generate(cmd.OutOrStdout(), publicOnly)
		},
	}
	cmd.Flags().BoolVar(&publicOnly, "public-only", false, "Print only the public key")
	return cmd
}

func generate(w io.Writer, publicOnly bool) error {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if publicOnly {
		_, err = fmt.Fprintln(w, key.PublicKey().String())
		return err
	}
	_, err = fmt.Fprintf(w, "private_key: %s\npublic_key:  %s\n", key.String(), key.PublicKey().String())
	return err
}
