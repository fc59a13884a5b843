package audit_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	"github.com/frahmantamala/access-control/pkg/metrics"
)

type failingStore struct{}

func (failingStore) Append(context.Context, *audit.Entry) error {
	return errors.New("disk full")
}

func (failingStore) Query(context.Context, audit.Filter) ([]*audit.Entry, error) {
	return nil, errors.New("disk full")
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

var _ = Describe("Recorder", func() {
	var (
		ctx      context.Context
		clk      *clock.Fake
		store    *audit.MemoryStore
		recorder *audit.Recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(t0)
		store = audit.NewMemoryStore()
		recorder = audit.NewRecorder(store, clk, logger.Discard())
	})

	Describe("Record", func() {
		It("assigns an id and the current time", func() {
			e := recorder.Record(ctx, audit.Entry{Username: "alice", Action: audit.ActionLogin, EntityType: audit.EntitySession})

			Expect(e.ID).To(HaveLen(26))
			Expect(e.Timestamp).To(BeTemporally("==", t0))
		})

		It("keeps timestamps strictly increasing when the clock stands still", func() {
			first := recorder.Record(ctx, audit.Entry{Action: audit.ActionCreate, EntityType: audit.EntityRole})
			second := recorder.Record(ctx, audit.Entry{Action: audit.ActionUpdate, EntityType: audit.EntityRole})

			Expect(second.Timestamp.After(first.Timestamp)).To(BeTrue())
			Expect(second.ID > first.ID).To(BeTrue())

			entries, err := recorder.Query(ctx, audit.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Action).To(Equal(audit.ActionCreate))
			Expect(entries[1].Action).To(Equal(audit.ActionUpdate))
		})

		It("fills client details from the context", func() {
			ctx = internal.ContextWithClient(ctx, internal.ClientInfo{IPAddress: "10.0.0.7", UserAgent: "curl/8"})
			e := recorder.Record(ctx, audit.Entry{Action: audit.ActionLogin, EntityType: audit.EntitySession})

			Expect(e.IPAddress).To(Equal("10.0.0.7"))
			Expect(e.UserAgent).To(Equal("curl/8"))
		})

		It("swallows store failures and counts them", func() {
			recorder = audit.NewRecorder(failingStore{}, clk, logger.Discard())
			counter := metrics.AuditRecordFailures.WithLabelValues("delete", "user")
			before := testutil.ToFloat64(counter)

			Expect(func() {
				recorder.Record(ctx, audit.Entry{Action: audit.ActionDelete, EntityType: audit.EntityUser})
			}).NotTo(Panic())
			Expect(testutil.ToFloat64(counter)).To(Equal(before + 1))
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			recorder.Record(ctx, audit.Entry{UserID: "u-1", Action: audit.ActionLogin, EntityType: audit.EntitySession})
			clk.Advance(time.Minute)
			recorder.Record(ctx, audit.Entry{UserID: "u-1", Action: audit.ActionUpdate, EntityType: audit.EntityRole})
			clk.Advance(time.Minute)
			recorder.Record(ctx, audit.Entry{UserID: "u-2", Action: audit.ActionUpdate, EntityType: audit.EntityRole})
			clk.Advance(time.Minute)
			recorder.Record(ctx, audit.Entry{UserID: "u-1", Action: audit.ActionUpdate, EntityType: audit.EntityUser})
		})

		It("returns the intersection of the set filters", func() {
			entries, err := recorder.Query(ctx, audit.Filter{UserID: "u-1", Action: audit.ActionUpdate})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))

			entries, err = recorder.Query(ctx, audit.Filter{UserID: "u-1", Action: audit.ActionUpdate, EntityType: audit.EntityRole})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Timestamp).To(BeTemporally("==", t0.Add(time.Minute)))
		})

		It("treats the date range as inclusive", func() {
			entries, err := recorder.Query(ctx, audit.Filter{From: t0.Add(time.Minute), To: t0.Add(2 * time.Minute)})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
		})

		It("keeps the most recent entries under a limit, oldest first", func() {
			entries, err := recorder.Query(ctx, audit.Filter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].UserID).To(Equal("u-2"))
			Expect(entries[1].UserID).To(Equal("u-1"))
			Expect(entries[1].EntityType).To(Equal(audit.EntityUser))

			entries, err = recorder.Query(ctx, audit.Filter{UserID: "u-1", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Timestamp).To(BeTemporally("==", t0.Add(3*time.Minute)))
		})

		It("rejects unknown actions", func() {
			_, err := recorder.Query(ctx, audit.Filter{Action: "explode"})
			Expect(err).To(MatchError(internal.NewValidationError("", internal.ErrCodeValidationFailed)))
		})

		It("rejects an inverted range", func() {
			_, err := recorder.Query(ctx, audit.Filter{From: t0.Add(time.Hour), To: t0})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Handle", func() {
		It("maps security events to entries", func() {
			event := events.NewSecurityEvent(events.EventTypeUserRoleChanged,
				events.Actor{UserID: "u-1", Username: "alice"}, "u-2", "bob").
				Diff("role", "viewer", "admin").
				WithClient("10.0.0.1", "firefox")

			Expect(recorder.Handle(ctx, event)).To(Succeed())

			entries, err := recorder.Query(ctx, audit.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			e := entries[0]
			Expect(e.Action).To(Equal(audit.ActionRoleChange))
			Expect(e.EntityType).To(Equal(audit.EntityUser))
			Expect(e.Username).To(Equal("alice"))
			Expect(e.EntityName).To(Equal("bob"))
			Expect(e.Changes).To(ConsistOf(audit.Change{Field: "role", OldValue: "viewer", NewValue: "admin"}))
			Expect(e.IPAddress).To(Equal("10.0.0.1"))
		})

		It("records every published security event once subscribed", func() {
			bus := events.NewEventBus(logger.Discard())
			recorder.Subscribe(bus)

			Expect(bus.PublishSync(ctx, events.NewSecurityEvent(events.EventTypeSessionLogin,
				events.Actor{UserID: "u-1", Username: "alice"}, "u-1", "alice"))).To(Succeed())
			Expect(bus.PublishSync(ctx, events.NewSecurityEvent(events.EventTypeRoleDeleted,
				events.Actor{UserID: "u-1", Username: "alice"}, "r-9", "Temp").WithReason("cleanup"))).To(Succeed())

			entries, err := recorder.Query(ctx, audit.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[1].Action).To(Equal(audit.ActionDelete))
			Expect(entries[1].Reason).To(Equal("cleanup"))
		})

		It("never returns an error even when the store fails", func() {
			recorder = audit.NewRecorder(failingStore{}, clk, logger.Discard())
			event := events.NewSecurityEvent(events.EventTypeRoleCreated, events.Actor{UserID: "u-1"}, "r-1", "Ops")
			Expect(recorder.Handle(ctx, event)).To(Succeed())
		})
	})
})
