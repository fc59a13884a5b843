package session_test

import (
	"context"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		clk      *clock.Fake
		store    *session.MemoryStore
		registry *session.Registry
		resolve  session.Resolver
	)

	startSession := func(token string) {
		_, err := registry.Start(ctx, session.Session{Token: token, User: testUser(), ExpiresAt: clk.Now().Add(8 * time.Hour)},
			ability.FromKeys([]string{"roles.read"}))
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(t0)
		store = session.NewMemoryStore()
		registry = session.NewRegistry(referenceConfig(), store, clk, logger.Discard())
		resolve = func(context.Context, *rbac.User) (*ability.Engine, error) {
			return ability.FromKeys([]string{"users.read"}), nil
		}
	})

	AfterEach(func() {
		registry.Close()
	})

	It("should track one manager per token", func() {
		startSession("a")
		startSession("b")
		Expect(registry.Len()).To(Equal(2))

		m, err := registry.Get(ctx, "a", resolve)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Ability(ctx).Can(ability.Read, "roles")).To(BeTrue())
	})

	It("should report an unknown token as not found", func() {
		_, err := registry.Get(ctx, "nope", resolve)
		Expect(err).To(MatchError(internal.ErrSessionNotFound))
	})

	It("should report an expired session once, then forget it", func() {
		startSession("a")
		clk.Advance(31 * time.Minute)

		_, err := registry.Get(ctx, "a", resolve)
		Expect(err).To(MatchError(internal.ErrSessionExpired))
		Expect(registry.Len()).To(Equal(0))

		_, err = registry.Get(ctx, "a", resolve)
		Expect(err).To(MatchError(internal.ErrSessionNotFound))
	})

	It("should restore sessions persisted by another process", func() {
		startSession("a")
		registry.Close()

		restarted := session.NewRegistry(referenceConfig(), store, clk, logger.Discard())
		defer restarted.Close()

		m, err := restarted.Get(ctx, "a", resolve)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Ability(ctx).Can(ability.Read, "users")).To(BeTrue())
		Expect(restarted.Len()).To(Equal(1))
	})

	It("should end a session on logout", func() {
		startSession("a")
		Expect(registry.Logout(ctx, "a")).To(Succeed())
		Expect(registry.Len()).To(Equal(0))
		Expect(store.Len()).To(Equal(0))

		_, err := registry.Get(ctx, "a", resolve)
		Expect(err).To(MatchError(internal.ErrSessionNotFound))
	})
})
