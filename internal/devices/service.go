package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/wispwatch/internal/provision"
	"github.com/HerbHall/wispwatch/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFamilyImmutable is returned when an update tries to change a
// device's family.
var ErrFamilyImmutable = errors.New("device family cannot be changed")

// Provisioner reconciles gateway state for gateway-reachable devices.
// Defined here, where consumed; *provision.Reconciler implements it.
type Provisioner interface {
	Provision(ctx context.Context, dev models.Device) provision.Outcome
	Deprovision(ctx context.Context, dev models.Device, remaining []models.Device) provision.Outcome
}

// Service manages the device lifecycle. Creating a radio provisions the
// gateway; deleting one deprovisions it. Gateway trouble surfaces in
// the returned outcome but never blocks the registry change itself.
//
// Callers must not run two lifecycle operations for the same device
// concurrently; reconciliation does not serialize per device.
type Service struct {
	store  *Store
	prov   Provisioner
	logger *zap.Logger
}

// NewService creates the lifecycle service.
func NewService(store *Store, prov Provisioner, logger *zap.Logger) *Service {
	return &Service{store: store, prov: prov, logger: logger}
}

// Create validates and stores a new device, then provisions the gateway
// for gateway-reachable families. The record is inserted first: a
// partially provisioned device an operator can see beats a blocked
// create.
func (s *Service) Create(ctx context.Context, dev *models.Device) (*provision.Outcome, error) {
	if err := validate(dev); err != nil {
		return nil, err
	}

	dev.ID = uuid.NewString()
	now := time.Now().UTC()
	dev.CreatedAt = now
	dev.UpdatedAt = now

	if err := s.store.Insert(ctx, dev); err != nil {
		return nil, err
	}
	s.logger.Info("device created",
		zap.String("device_id", dev.ID),
		zap.String("name", dev.Name),
		zap.String("family", string(dev.Family)),
	)

	if !dev.Family.GatewayReachable() {
		return nil, nil
	}

	out := s.prov.Provision(ctx, *dev)
	for _, w := range out.Warnings {
		s.logger.Warn("provisioning warning", zap.String("device_id", dev.ID), zap.String("warning", w))
	}
	return &out, nil
}

// List returns all registered devices, credentials omitted.
func (s *Service) List(ctx context.Context) ([]models.Device, error) {
	return s.store.List(ctx)
}

// Update rewrites a device's configuration. Family is immutable, and
// an empty Password leaves the stored credential in place.
func (s *Service) Update(ctx context.Context, dev *models.Device) error {
	existing, err := s.store.GetWithCredentials(ctx, dev.ID)
	if err != nil {
		return err
	}
	if dev.Family != "" && dev.Family != existing.Family {
		return ErrFamilyImmutable
	}
	dev.Family = existing.Family

	if err := validate(dev); err != nil {
		return err
	}
	return s.store.Update(ctx, dev)
}

// Delete deprovisions gateway state (radio family) and removes the
// record. Deprovision warnings never abort the deletion.
func (s *Service) Delete(ctx context.Context, id string) (*provision.Outcome, error) {
	dev, err := s.store.GetWithCredentials(ctx, id)
	if err != nil {
		return nil, err
	}

	var outcome *provision.Outcome
	if dev.Family.GatewayReachable() {
		all, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		remaining := make([]models.Device, 0, len(all))
		for _, other := range all {
			if other.ID != id {
				remaining = append(remaining, other)
			}
		}

		out := s.prov.Deprovision(ctx, dev, remaining)
		for _, w := range out.Warnings {
			s.logger.Warn("deprovisioning warning", zap.String("device_id", id), zap.String("warning", w))
		}
		outcome = &out
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return outcome, err
	}
	s.logger.Info("device deleted", zap.String("device_id", id), zap.String("name", dev.Name))
	return outcome, nil
}

func validate(dev *models.Device) error {
	if dev.Name == "" {
		return errors.New("device name is required")
	}
	if !dev.Family.Valid() {
		return fmt.Errorf("unknown device family %q", dev.Family)
	}
	if dev.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}

	if dev.Family.GatewayReachable() {
		if dev.InnerIP == "" || dev.TunnelIP == "" {
			return errors.New("radio devices need inner and tunnel IPs")
		}
		if dev.NATPort <= 0 || dev.NATPort > 65535 {
			return fmt.Errorf("invalid NAT port %d", dev.NATPort)
		}
	} else if dev.Host == "" {
		return errors.New("optical terminals need a host")
	}
	return nil
}
