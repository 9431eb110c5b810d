package firewall

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"time"
)

const execTimeout = 10 * time.Second

// IPTables manages drops in a dedicated iptables chain. The chain is
// created on startup and hooked into INPUT, so flushing it never
// touches rules the host administrator owns.
type IPTables struct {
	chain  string
	binary string
	logger *slog.Logger
}

// NewIPTables creates an iptables-backed firewall using the given chain
func NewIPTables(chain string, logger *slog.Logger) *IPTables {
	if chain == "" {
		chain = "SSHSENTINEL"
	}
	return &IPTables{
		chain:  chain,
		binary: "iptables",
		logger: logger,
	}
}

// Name identifies the backend for logs
func (f *IPTables) Name() string {
	return "iptables"
}

// EnsureChain creates the managed chain and the INPUT jump if missing
func (f *IPTables) EnsureChain(ctx context.Context) error {
	// -N fails when the chain already exists, which is fine
	if err := f.run(ctx, "-N", f.chain); err != nil {
		if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "Chain already exists") {
			return fmt.Errorf("create chain %s: %w", f.chain, err)
		}
	}

	if err := f.run(ctx, "-C", "INPUT", "-j", f.chain); err != nil {
		if err := f.run(ctx, "-I", "INPUT", "1", "-j", f.chain); err != nil {
			return fmt.Errorf("hook chain %s into INPUT: %w", f.chain, err)
		}
	}

	f.logger.Info("firewall chain ready", "chain", f.chain)
	return nil
}

// ApplyDrop installs a DROP rule for the IP. Idempotent: an existing
// rule is left in place.
func (f *IPTables) ApplyDrop(ctx context.Context, ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP %q", ip)
	}

	if err := f.run(ctx, "-C", f.chain, "-s", ip, "-j", "DROP"); err == nil {
		return nil
	}

	if err := f.run(ctx, "-A", f.chain, "-s", ip, "-j", "DROP"); err != nil {
		return fmt.Errorf("apply drop for %s: %w", ip, err)
	}
	return nil
}

// RemoveDrop removes the DROP rule for the IP. A missing rule is not
// an error.
func (f *IPTables) RemoveDrop(ctx context.Context, ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP %q", ip)
	}

	if err := f.run(ctx, "-C", f.chain, "-s", ip, "-j", "DROP"); err != nil {
		return nil
	}

	if err := f.run(ctx, "-D", f.chain, "-s", ip, "-j", "DROP"); err != nil {
		return fmt.Errorf("remove drop for %s: %w", ip, err)
	}
	return nil
}

func (f *IPTables) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s %s: %s", f.binary, strings.Join(args, " "), msg)
		}
		return fmt.Errorf("%s %s: %w", f.binary, strings.Join(args, " "), err)
	}
	return nil
}
