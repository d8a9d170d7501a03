// Package provision reconciles gateway-side NAT rules and address
// assignments so radio devices become reachable through the gateway.
//
// The gateway is the source of truth: every run re-queries its state
// and decides from that, never from a local mirror, because operators
// mutate the gateway out-of-band. Both operations are idempotent; a
// second run only adds "already present"/"already absent" steps.
//
// Concurrent reconciliations for different devices are safe (disjoint
// ports and addresses); racing two reconciliations for the same device
// is the caller's responsibility to prevent.
package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/internal/telemetry"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// Outcome reports what a reconciliation run did: ordered human-readable
// steps, non-fatal warnings, and whether the run as a whole succeeded.
type Outcome struct {
	Steps    []string `json:"steps"`
	Warnings []string `json:"warnings"`
	Success  bool     `json:"success"`
}

func (o *Outcome) step(format string, args ...any) {
	o.Steps = append(o.Steps, fmt.Sprintf(format, args...))
}

func (o *Outcome) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// Reconciler provisions and deprovisions gateway NAT/address state.
type Reconciler struct {
	dialer  remote.Dialer
	gateway remote.Target
	iface   string
	logger  *zap.Logger
}

// New creates a reconciler for the given gateway and LAN interface.
func New(dialer remote.Dialer, gateway remote.Target, iface string, logger *zap.Logger) *Reconciler {
	return &Reconciler{dialer: dialer, gateway: gateway, iface: iface, logger: logger}
}

// Provision ensures the device's tunnel address is assigned on the
// gateway interface and a dst-nat rule forwards its NAT port to the
// device's SSH port. Only a gateway connect failure aborts the run;
// individual command failures become warnings, preferring a partially
// provisioned device over blocking the create operation.
func (r *Reconciler) Provision(ctx context.Context, dev models.Device) Outcome {
	out := Outcome{Success: true}

	ctx, cancel := context.WithTimeout(ctx, remote.OperationTimeout)
	defer cancel()

	sess, err := r.dialer.Dial(ctx, r.gateway)
	if err != nil {
		out.Success = false
		out.warn("gateway connect failed: %v", err)
		return out
	}
	defer sess.Close()

	r.ensureAddress(ctx, sess, dev, &out)
	r.ensureNATRule(ctx, sess, dev, &out)

	r.logger.Info("provision finished",
		zap.String("device_id", dev.ID),
		zap.Int("steps", len(out.Steps)),
		zap.Int("warnings", len(out.Warnings)),
	)
	return out
}

// Deprovision removes the device's NAT rule and, when no remaining
// radio shares its /24, the address assignment. All failures are
// warnings: the device record's deletion must never be blocked by
// gateway-side cleanup.
func (r *Reconciler) Deprovision(ctx context.Context, dev models.Device, remaining []models.Device) Outcome {
	out := Outcome{Success: true}

	ctx, cancel := context.WithTimeout(ctx, remote.OperationTimeout)
	defer cancel()

	sess, err := r.dialer.Dial(ctx, r.gateway)
	if err != nil {
		out.warn("gateway unreachable, skipping cleanup: %v", err)
		return out
	}
	defer sess.Close()

	r.removeNATRule(ctx, sess, dev, &out)

	if holders := subnetHolders(dev, remaining); len(holders) > 0 {
		out.step("address %s/24 preserved: still serving %s", dev.TunnelIP, strings.Join(holders, ", "))
	} else {
		r.removeAddress(ctx, sess, dev, &out)
	}

	r.logger.Info("deprovision finished",
		zap.String("device_id", dev.ID),
		zap.Int("steps", len(out.Steps)),
		zap.Int("warnings", len(out.Warnings)),
	)
	return out
}

func (r *Reconciler) ensureAddress(ctx context.Context, sess remote.Session, dev models.Device, out *Outcome) {
	listing, err := sess.Run(ctx, listAddressesCmd(r.iface))
	if err != nil {
		out.warn("could not list %s addresses: %v", r.iface, err)
		return
	}

	if telemetry.ParseAddressList(listing.Stdout)[dev.TunnelIP] {
		out.step("address %s/24 already assigned to %s", dev.TunnelIP, r.iface)
		return
	}

	if _, err := sess.Run(ctx, addAddressCmd(dev.TunnelIP, r.iface)); err != nil {
		out.warn("could not add address %s/24: %v", dev.TunnelIP, err)
		return
	}
	out.step("added address %s/24 to %s", dev.TunnelIP, r.iface)
}

func (r *Reconciler) ensureNATRule(ctx context.Context, sess remote.Session, dev models.Device, out *Outcome) {
	listing, err := sess.Run(ctx, listNATCmd(dev.NATPort))
	if err != nil {
		out.warn("could not list NAT rules for port %d: %v", dev.NATPort, err)
		return
	}

	if telemetry.NATRuleTargets(listing.Stdout, dev.InnerIP) {
		out.step("NAT rule %d -> %s:22 already present", dev.NATPort, dev.InnerIP)
		return
	}

	if _, err := sess.Run(ctx, addNATCmd(dev.NATPort, dev.InnerIP, dev.Name)); err != nil {
		out.warn("could not add NAT rule %d -> %s:22: %v", dev.NATPort, dev.InnerIP, err)
		return
	}
	out.step("added NAT rule %d -> %s:22", dev.NATPort, dev.InnerIP)
}

func (r *Reconciler) removeNATRule(ctx context.Context, sess remote.Session, dev models.Device, out *Outcome) {
	listing, err := sess.Run(ctx, listNATCmd(dev.NATPort))
	if err != nil {
		out.warn("could not list NAT rules for port %d: %v", dev.NATPort, err)
		return
	}

	if !telemetry.NATRuleTargets(listing.Stdout, dev.InnerIP) {
		out.warn("NAT rule %d -> %s:22 already absent", dev.NATPort, dev.InnerIP)
		return
	}

	if _, err := sess.Run(ctx, removeNATCmd(dev.NATPort, dev.InnerIP)); err != nil {
		out.warn("could not remove NAT rule %d -> %s:22: %v", dev.NATPort, dev.InnerIP, err)
		return
	}
	out.step("removed NAT rule %d -> %s:22", dev.NATPort, dev.InnerIP)
}

func (r *Reconciler) removeAddress(ctx context.Context, sess remote.Session, dev models.Device, out *Outcome) {
	listing, err := sess.Run(ctx, listAddressesCmd(r.iface))
	if err != nil {
		out.warn("could not list %s addresses: %v", r.iface, err)
		return
	}

	if !telemetry.ParseAddressList(listing.Stdout)[dev.TunnelIP] {
		out.warn("address %s/24 already absent from %s", dev.TunnelIP, r.iface)
		return
	}

	if _, err := sess.Run(ctx, removeAddressCmd(dev.TunnelIP)); err != nil {
		out.warn("could not remove address %s/24: %v", dev.TunnelIP, err)
		return
	}
	out.step("removed address %s/24 from %s", dev.TunnelIP, r.iface)
}

// subnetHolders lists remaining gateway-reachable devices whose inner
// IP shares the deleted device's /24 tunnel prefix. While any exist the
// address assignment must stay.
func subnetHolders(dev models.Device, remaining []models.Device) []string {
	prefix := SubnetPrefix(dev.TunnelIP)
	if prefix == "" {
		return nil
	}

	var holders []string
	for _, other := range remaining {
		if !other.Family.GatewayReachable() || other.ID == dev.ID {
			continue
		}
		if SubnetPrefix(other.InnerIP) == prefix {
			holders = append(holders, other.Name)
		}
	}
	return holders
}

// SubnetPrefix returns the first three octets of an IPv4 address, the
// /24 membership key. Empty for malformed input.
func SubnetPrefix(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ""
	}
	return strings.Join(parts[:3], ".")
}
