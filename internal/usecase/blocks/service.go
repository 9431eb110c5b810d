package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/firewall"
	"github.com/kr1s57/sshsentinel/internal/adapter/repository/badgerdb"
	"github.com/kr1s57/sshsentinel/internal/entity"
)

var (
	// ErrWhitelisted is returned when a block targets a whitelisted IP
	ErrWhitelisted = errors.New("IP is whitelisted and cannot be blocked")
	// ErrNotBlocked is returned when an unblock targets an IP with no record
	ErrNotBlocked = errors.New("IP is not blocked")
)

// protectedNetworks can never be blocked regardless of whitelist content
var protectedNetworks = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fe80::/10",
}

// Service owns the IP block lifecycle: Unblocked -> Blocked ->
// (expired | manually unblocked) -> Unblocked. All mutations serialize
// through one mutex so a sweep and an on-demand block cannot race.
type Service struct {
	store    *badgerdb.Store
	firewall firewall.Firewall
	logger   *slog.Logger
	mu       sync.Mutex

	// parsed whitelist, rebuilt on every whitelist mutation
	wlMu    sync.RWMutex
	wlNets  []*net.IPNet
	protect []*net.IPNet
}

// NewService creates the block manager and loads the whitelist
func NewService(store *badgerdb.Store, fw firewall.Firewall, logger *slog.Logger) (*Service, error) {
	s := &Service{
		store:    store,
		firewall: fw,
		logger:   logger,
	}

	for _, cidr := range protectedNetworks {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse protected network %q: %w", cidr, err)
		}
		s.protect = append(s.protect, n)
	}

	if err := s.reloadWhitelist(); err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}
	return s, nil
}

// Restore re-applies firewall drops for every persisted, unexpired
// block. Called once on startup so the firewall matches the store
// after a restart.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.ListBlocks()
	if err != nil {
		return 0, fmt.Errorf("list blocks: %w", err)
	}

	restored := 0
	now := time.Now()
	for i := range stored {
		block := &stored[i]
		if block.Expired(now) {
			continue
		}
		if err := s.firewall.ApplyDrop(ctx, block.IP); err != nil {
			s.logger.Warn("failed to restore firewall drop", "ip", block.IP, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// Block blocks an IP. An already-active block is an idempotent no-op:
// the existing record is returned with created=false and no error.
func (s *Service) Block(ctx context.Context, req *entity.BlockRequest) (*entity.BlockRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsWhitelisted(req.IP) {
		return nil, false, fmt.Errorf("%w: %s", ErrWhitelisted, req.IP)
	}

	now := time.Now()

	existing, err := s.store.GetBlock(req.IP)
	if err == nil && !existing.Expired(now) {
		return existing, false, nil
	}
	if err != nil && !errors.Is(err, badgerdb.ErrNotFound) {
		return nil, false, fmt.Errorf("get block: %w", err)
	}

	duration := entity.BlockDurationFor(req.ThreatLevel)
	if req.DurationHours != nil && *req.DurationHours > 0 {
		duration = time.Duration(*req.DurationHours) * time.Hour
	}

	block := &entity.BlockRecord{
		IP:            req.IP,
		Reason:        req.Reason,
		ThreatLevel:   req.ThreatLevel,
		BlockedAt:     now,
		UnblockAt:     now.Add(duration),
		DurationHours: int(duration.Hours()),
		Manual:        req.Manual,
		CreatedBy:     req.PerformedBy,
	}

	// Firewall first; a rule without a record is repaired by rollback,
	// a record without a rule would silently let traffic through
	if err := s.firewall.ApplyDrop(ctx, req.IP); err != nil {
		return nil, false, fmt.Errorf("apply firewall drop: %w", err)
	}

	if err := s.store.PutBlock(block); err != nil {
		if rbErr := s.firewall.RemoveDrop(ctx, req.IP); rbErr != nil {
			s.logger.Error("rollback of firewall drop failed", "ip", req.IP, "error", rbErr)
		}
		return nil, false, fmt.Errorf("persist block: %w", err)
	}

	s.recordHistory(req.IP, entity.BlockActionBlock, req.Reason, block.DurationHours, req.PerformedBy)
	s.logger.Info("IP blocked",
		"ip", req.IP,
		"severity", block.ThreatLevel,
		"duration_hours", block.DurationHours,
		"manual", req.Manual)

	return block, true, nil
}

// Unblock removes a block. Firewall removal is best effort: the record
// is cleared even when the rule removal fails, so the store never claims
// a block the firewall no longer enforces.
func (s *Service) Unblock(ctx context.Context, ip, reason, performedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unblockLocked(ctx, ip, entity.BlockActionUnblock, reason, performedBy)
}

func (s *Service) unblockLocked(ctx context.Context, ip, action, reason, performedBy string) error {
	_, err := s.store.GetBlock(ip)
	if errors.Is(err, badgerdb.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotBlocked, ip)
	}
	if err != nil {
		return fmt.Errorf("get block: %w", err)
	}

	if err := s.firewall.RemoveDrop(ctx, ip); err != nil {
		s.logger.Warn("firewall drop removal failed, clearing record anyway", "ip", ip, "error", err)
	}

	if err := s.store.DeleteBlock(ip); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}

	s.recordHistory(ip, action, reason, 0, performedBy)
	s.logger.Info("IP unblocked", "ip", ip, "action", action, "reason", reason)
	return nil
}

// SweepExpired unblocks every record whose unblock time has passed and
// returns the count removed
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.ListBlocks()
	if err != nil {
		return 0, fmt.Errorf("list blocks: %w", err)
	}

	count := 0
	for i := range stored {
		block := &stored[i]
		if !block.Expired(now) {
			continue
		}
		if err := s.unblockLocked(ctx, block.IP, entity.BlockActionExpire, "block expired", "system"); err != nil {
			s.logger.Error("failed to expire block", "ip", block.IP, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// ListBlocks returns every active block record
func (s *Service) ListBlocks() ([]entity.BlockRecord, error) {
	return s.store.ListBlocks()
}

// GetBlock returns the block record for an IP, or ErrNotBlocked
func (s *Service) GetBlock(ip string) (*entity.BlockRecord, error) {
	block, err := s.store.GetBlock(ip)
	if errors.Is(err, badgerdb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotBlocked, ip)
	}
	return block, err
}

// ActiveCount returns the number of stored blocks
func (s *Service) ActiveCount() int {
	stored, err := s.store.ListBlocks()
	if err != nil {
		return 0
	}
	return len(stored)
}

// History returns the audit trail for an IP
func (s *Service) History(ip string, limit int) ([]entity.BlockHistory, error) {
	return s.store.HistoryForIP(ip, limit)
}

func (s *Service) recordHistory(ip, action, reason string, durationHours int, performedBy string) {
	h := &entity.BlockHistory{
		ID:            uuid.New(),
		IP:            ip,
		Action:        action,
		Reason:        reason,
		DurationHours: durationHours,
		PerformedBy:   performedBy,
		CreatedAt:     time.Now(),
	}
	if err := s.store.AppendHistory(h); err != nil {
		s.logger.Warn("failed to record block history", "ip", ip, "action", action, "error", err)
	}
}

// --- whitelist ---

// IsWhitelisted reports whether an IP falls inside a whitelist entry or
// a protected network
func (s *Service) IsWhitelisted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, n := range s.protect {
		if n.Contains(parsed) {
			return true
		}
	}

	s.wlMu.RLock()
	defer s.wlMu.RUnlock()
	for _, n := range s.wlNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// AddWhitelist adds an IP or CIDR to the whitelist. A currently-blocked
// IP inside the new range is unblocked first.
func (s *Service) AddWhitelist(ctx context.Context, cidr, reason, addedBy string) error {
	normalized, ipNet, err := normalizeCIDR(cidr)
	if err != nil {
		return err
	}

	entry := &entity.WhitelistEntry{
		CIDR:      normalized,
		Reason:    reason,
		AddedBy:   addedBy,
		CreatedAt: time.Now(),
	}
	if err := s.store.PutWhitelist(entry); err != nil {
		return fmt.Errorf("persist whitelist entry: %w", err)
	}

	if err := s.reloadWhitelist(); err != nil {
		return err
	}

	// Unblock anything the new entry covers
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.store.ListBlocks()
	if err != nil {
		return nil
	}
	for i := range stored {
		if ipNet.Contains(net.ParseIP(stored[i].IP)) {
			if err := s.unblockLocked(ctx, stored[i].IP, entity.BlockActionUnblock, "added to whitelist", addedBy); err != nil {
				s.logger.Warn("failed to unblock newly whitelisted IP", "ip", stored[i].IP, "error", err)
			}
		}
	}
	return nil
}

// RemoveWhitelist removes a whitelist entry by IP or CIDR
func (s *Service) RemoveWhitelist(cidr string) error {
	normalized, _, err := normalizeCIDR(cidr)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWhitelist(normalized); err != nil {
		return fmt.Errorf("delete whitelist entry: %w", err)
	}
	return s.reloadWhitelist()
}

// ListWhitelist returns every whitelist entry
func (s *Service) ListWhitelist() ([]entity.WhitelistEntry, error) {
	return s.store.ListWhitelist()
}

func (s *Service) reloadWhitelist() error {
	entries, err := s.store.ListWhitelist()
	if err != nil {
		return fmt.Errorf("list whitelist: %w", err)
	}

	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		_, n, err := net.ParseCIDR(entry.CIDR)
		if err != nil {
			s.logger.Warn("skipping malformed whitelist entry", "cidr", entry.CIDR, "error", err)
			continue
		}
		nets = append(nets, n)
	}

	s.wlMu.Lock()
	s.wlNets = nets
	s.wlMu.Unlock()
	return nil
}

// normalizeCIDR accepts a bare IP or a CIDR and returns canonical CIDR
// notation (/32 or /128 for single addresses)
func normalizeCIDR(s string) (string, *net.IPNet, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return "", nil, fmt.Errorf("invalid IP %q", s)
		}
		if ip.To4() != nil {
			s += "/32"
		} else {
			s += "/128"
		}
	}
	_, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return "", nil, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	return ipNet.String(), ipNet, nil
}
