package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// units maps the short names accepted on the command line to systemd units.
var units = map[string]string{
	"server":    "accountable.service",
	"pushrelay": "accountable-pushrelay.service",
}

type remoteFlags struct {
	host    string
	port    string
	keyPath string
}

type unitStatus struct {
	Unit        string `json:"unit"`
	Active      string `json:"active"`
	Sub         string `json:"sub"`
	Description string `json:"description"`
}

// RemoteCmd manages the deployed server and push relay over SSH.
func RemoteCmd() *cobra.Command {
	var f remoteFlags

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect and restart the deployed services over SSH",
	}
	cmd.PersistentFlags().StringVar(&f.host, "host", os.Getenv("SSH_HOST"), "SSH host (user@host) or set SSH_HOST env")
	cmd.PersistentFlags().StringVar(&f.port, "port", "22", "SSH port")
	cmd.PersistentFlags().StringVar(&f.keyPath, "key", "", "Path to SSH private key (default: ~/.ssh/id_ed25519)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of the accountable units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remoteStatus(cmd, f)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "restart <server|pushrelay>",
		Short:     "Restart one unit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"server", "pushrelay"},
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := unitName(args[0])
			if err != nil {
				return err
			}
			out, err := runRemote(f, "systemctl restart "+unit)
			if err != nil {
				return fmt.Errorf("restart %s: %w\n%s", unit, err, out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restarted %s\n", unit)
			return nil
		},
	})

	var lines int
	logs := &cobra.Command{
		Use:       "logs <server|pushrelay>",
		Short:     "Print recent journal lines for one unit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"server", "pushrelay"},
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := unitName(args[0])
			if err != nil {
				return err
			}
			out, err := runRemote(f, fmt.Sprintf("journalctl -u %s -n %d --no-pager", unit, lines))
			if err != nil {
				return fmt.Errorf("logs %s: %w", unit, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	logs.Flags().IntVarP(&lines, "lines", "n", 100, "number of journal lines")
	cmd.AddCommand(logs)

	return cmd
}

func unitName(short string) (string, error) {
	unit, ok := units[short]
	if !ok {
		return "", fmt.Errorf("unknown unit %q (want server or pushrelay)", short)
	}
	return unit, nil
}

func remoteStatus(cmd *cobra.Command, f remoteFlags) error {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u)
	}
	slices.Sort(names)

	out, err := runRemote(f, "systemctl list-units --all --no-pager --output=json "+strings.Join(names, " "))
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}

	var statuses []unitStatus
	err = json.Unmarshal([]byte(out), &statuses)
	if err != nil {
		return fmt.Errorf("parse json: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-32s %-8s %-10s %s\n", "UNIT", "ACTIVE", "SUB", "DESCRIPTION")
	for _, s := range statuses {
		fmt.Fprintf(w, "%-32s %-8s %-10s %s\n", s.Unit, s.Active, s.Sub, s.Description)
	}
	if len(statuses) < len(names) {
		fmt.Fprintf(w, "%d of %d units are not installed\n", len(names)-len(statuses), len(names))
	}
	return nil
}

func runRemote(f remoteFlags, command string) (string, error) {
	if f.host == "" {
		return "", fmt.Errorf("--host is required or set SSH_HOST env")
	}

	client, err := sshConnect(f)
	if err != nil {
		return "", fmt.Errorf("ssh connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	return string(output), err
}

func sshConnect(f remoteFlags) (*ssh.Client, error) {
	authMethods, err := authMethods(f.keyPath)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user, host := splitUserHost(f.host)
	addr := net.JoinHostPort(host, f.port)
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}

// hostKeyCallback checks the server against ~/.ssh/known_hosts.
func hostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts (ssh to the host once first): %w", err)
	}
	return cb, nil
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	// Try ssh-agent first
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && keyPath == "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			keys, err := agentClient.List()
			if err == nil && len(keys) > 0 {
				return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
			}
			_ = conn.Close()
		}
	}

	// Fall back to key file
	var key []byte
	var err error
	if keyPath != "" {
		key, err = os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", keyPath, err)
		}
	} else {
		key, err = findSSHKey()
		if err != nil {
			return nil, err
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, errors.New("key is passphrase protected, load it with ssh-add first")
	}
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}

	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func findSSHKey() ([]byte, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	keyNames := []string{"id_ed25519", "id_rsa", "id_ecdsa"}
	for _, name := range keyNames {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("no SSH key found in ~/.ssh (tried: %v)", keyNames)
}

// splitUserHost parses user@host, defaulting the user to root.
func splitUserHost(s string) (user, host string) {
	user, host, ok := strings.Cut(s, "@")
	if !ok {
		return "root", s
	}
	return user, host
}
