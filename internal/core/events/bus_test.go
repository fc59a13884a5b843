package events_test

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/pkg/logger"
)

var _ = Describe("EventBus", func() {
	var (
		bus *events.EventBus
		ctx context.Context
	)

	BeforeEach(func() {
		bus = events.NewEventBus(logger.Discard())
		ctx = context.Background()
	})

	newEvent := func(eventType string) *events.SecurityEvent {
		return events.NewSecurityEvent(eventType, events.Actor{UserID: "u-1", Username: "alice"}, "r-1", "Ops")
	}

	It("registers one handler for several event types", func() {
		bus.Subscribe(func(context.Context, events.Event) error { return nil },
			events.EventTypeRoleCreated, events.EventTypeRoleDeleted)

		Expect(bus.HandlerCount(events.EventTypeRoleCreated)).To(Equal(1))
		Expect(bus.HandlerCount(events.EventTypeRoleDeleted)).To(Equal(1))
		Expect(bus.HandlerCount(events.EventTypeUserCreated)).To(Equal(0))
	})

	It("runs every synchronous handler and joins their failures", func() {
		var calls int32
		bus.Subscribe(func(context.Context, events.Event) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("first")
		}, events.EventTypeRoleCreated)
		bus.Subscribe(func(context.Context, events.Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}, events.EventTypeRoleCreated)

		err := bus.PublishSync(ctx, newEvent(events.EventTypeRoleCreated))
		Expect(err).To(MatchError(ContainSubstring("first")))
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
	})

	It("delivers asynchronously and survives a cancelled context", func() {
		var got atomic.Value
		bus.Subscribe(func(ctx context.Context, e events.Event) error {
			got.Store(e.EventType())
			return ctx.Err()
		}, events.EventTypeSessionLogout)

		cctx, cancel := context.WithCancel(ctx)
		Expect(bus.Publish(cctx, newEvent(events.EventTypeSessionLogout))).To(Succeed())
		cancel()
		bus.Wait()

		Expect(got.Load()).To(Equal(events.EventTypeSessionLogout))
	})

	It("ignores events nobody listens to", func() {
		Expect(bus.PublishSync(ctx, newEvent(events.EventTypeUserDeleted))).To(Succeed())
	})
})

var _ = Describe("SecurityEvent", func() {
	It("records only fields that changed", func() {
		e := events.NewSecurityEvent(events.EventTypeUserUpdated, events.Actor{UserID: "u-1"}, "u-2", "bob").
			Diff("email", "a@x.io", "a@x.io").
			Diff("status", "active", "inactive")

		Expect(e.Changes).To(ConsistOf(events.FieldChange{Field: "status", OldValue: "active", NewValue: "inactive"}))
		Expect(e.EventID()).NotTo(BeEmpty())
	})
})
