package service

import (
	"context"
	"errors"
	"fmt"

	"abrplink/backend/services/abrp-agent/internal/host"
	"abrplink/backend/services/abrp-agent/internal/models"
)

// ErrUnknownEvent is returned by Publish for events the agent does not listen to.
var ErrUnknownEvent = errors.New("abrp: unknown vehicle event")

// Caller runs functions on the scheduler loop.
type Caller interface {
	Call(ctx context.Context, fn func(ctx context.Context) error) error
	Publish(topic string)
}

// Controller is the goroutine-safe face of Agent used by the control API and app wiring.
type Controller struct {
	agent  *Agent
	caller Caller
}

// NewController wraps agent.
func NewController(agent *Agent, caller Caller) *Controller {
	return &Controller{agent: agent, caller: caller}
}

func (c *Controller) Info(ctx context.Context) (models.TelemetryRecord, error) {
	var rec models.TelemetryRecord
	err := c.caller.Call(ctx, func(ctx context.Context) error {
		rec = c.agent.Info(ctx)
		return nil
	})
	return rec, err
}

func (c *Controller) Onetime(ctx context.Context) (models.TelemetryRecord, error) {
	var rec models.TelemetryRecord
	err := c.caller.Call(ctx, func(ctx context.Context) error {
		var err error
		rec, err = c.agent.Onetime(ctx)
		return err
	})
	return rec, err
}

func (c *Controller) SetSending(ctx context.Context, enabled bool) (Status, error) {
	var st Status
	err := c.caller.Call(ctx, func(ctx context.Context) error {
		err := c.agent.SetSending(ctx, enabled)
		st = c.agent.Status()
		return err
	})
	return st, err
}

func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.caller.Call(ctx, func(context.Context) error {
		st = c.agent.Status()
		return nil
	})
	return st, err
}

func (c *Controller) ResetConfig(ctx context.Context) error {
	return c.caller.Call(ctx, c.agent.ResetConfig)
}

func (c *Controller) SetToken(ctx context.Context, token string) error {
	return c.caller.Call(ctx, func(ctx context.Context) error {
		return c.agent.SetToken(ctx, token)
	})
}

// Publish forwards a vehicle event to the scheduler.
func (c *Controller) Publish(name string) error {
	switch name {
	case host.EventVehicleOn, host.EventVehicleOff:
		c.caller.Publish(name)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Stop halts periodic sending when it is active; used at shutdown.
func (c *Controller) Stop(ctx context.Context) error {
	return c.caller.Call(ctx, func(ctx context.Context) error {
		if !c.agent.Running() {
			return nil
		}
		return c.agent.Stop(ctx)
	})
}
