package enrollcmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgenroll/cmd/wgenroll/cmdutil"
	"wgenroll/cmd/wgenroll/ui"
	"wgenroll/internal/buildinfo"
	"wgenroll/internal/enroll"
)

type options struct {
	device    enroll.DeviceIdentity
	publicKey string
	keygen    bool
	output    string
}

// Cmd returns the "wgenroll enroll" command.
func Cmd(conn *cmdutil.ConnFlags) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "enroll <invite-code>",
		Short: "Redeem an invite and fetch this device's tunnel config",
		Long: `Redeem an invite and fetch this device's tunnel config.

With --keygen a key pair is generated locally and the private key is
written into the config; it never leaves this machine. Without it, pass
the public key of a key pair you already hold with --public-key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var privateKey string
			if opts.keygen {
				if opts.publicKey != "" {
					return errors.New("--keygen and --public-key are mutually exclusive")
				}
				key, err := wgtypes.GeneratePrivateKey()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				privateKey = key.String()
				opts.publicKey = key.PublicKey().String()
			} else if opts.publicKey != "" {
				if _, err := wgtypes.ParseKey(opts.publicKey); err != nil {
					return fmt.Errorf("parse --public-key: %w", err)
				}
			}

			c, err := conn.Connect()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Enroll(cmd.Context(), strings.TrimSpace(args[0]), opts.device, opts.publicKey)
			if err != nil {
				return err
			}

			text := res.ClientConfig
			switch {
			case privateKey != "" && res.Reused:
				fmt.Fprintln(os.Stderr, ui.WarnMsg("Device already enrolled; the generated key was not registered and is discarded."))
			case privateKey != "":
				text = enroll.WithPrivateKey(text, privateKey)
			}

			if opts.output == "" {
				fmt.Print(text)
			} else if err := writeConfig(opts.output, text); err != nil {
				return err
			}

			verb := "Enrolled"
			if res.Reused {
				verb = "Already enrolled"
			}
			fmt.Fprintln(os.Stderr, ui.SuccessMsg("%s as %s (%s).", verb, ui.Bold(res.OverlayIP), res.PeerID))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.device.DeviceID, "device", hostname(), "Device id")
	f.StringVar(&opts.device.Fingerprint, "fingerprint", "", "Device fingerprint")
	f.StringVar(&opts.device.Platform, "platform", runtime.GOOS, "Device platform")
	f.StringVar(&opts.device.ClientVersion, "client-version", buildinfo.Version, "Client version reported to the server")
	f.StringVar(&opts.publicKey, "public-key", "", "WireGuard public key of this device")
	f.BoolVar(&opts.keygen, "keygen", false, "Generate a key pair locally and embed the private key")
	f.StringVarP(&opts.output, "output", "o", "", "Write the config to this file instead of stdout")
	return cmd
}

// writeConfig writes the tunnel config readable by the owner only, since it
// may contain a private key.
func writeConfig(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}
