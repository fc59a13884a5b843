package session_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RedisStore", func() {
	var (
		ctx    context.Context
		mr     *miniredis.Miniredis
		client *redis.Client
		store  *session.RedisStore
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store = session.NewRedisStore(client)
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
	})

	It("should report missing keys without an error", func() {
		v, ok, err := store.Get(ctx, "absent")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(v).To(BeEmpty())
	})

	It("should set, get and remove values", func() {
		Expect(store.Set(ctx, "a", "1", 0)).To(Succeed())
		Expect(store.Set(ctx, "b", "2", 0)).To(Succeed())

		v, ok, err := store.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("1"))

		Expect(store.Remove(ctx, "a", "b")).To(Succeed())
		Expect(mr.Exists("a")).To(BeFalse())
		Expect(mr.Exists("b")).To(BeFalse())
	})

	It("should honour the ttl", func() {
		Expect(store.Set(ctx, "a", "1", time.Minute)).To(Succeed())
		mr.FastForward(2 * time.Minute)
		_, ok, err := store.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should back a manager under a per-token prefix", func() {
		clk := clock.NewFake(t0)
		m := session.NewManager(referenceConfig(), session.WithPrefix(store, "tok-1"), clk, logger.Discard())
		defer m.Close()

		Expect(m.Start(ctx, session.Session{Token: "tok-1", User: testUser(), LoginTime: t0, ExpiresAt: t0.Add(8 * time.Hour)},
			ability.Empty())).To(Succeed())

		token, err := mr.Get("tok-1:" + session.KeyToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(Equal("tok-1"))
		Expect(mr.TTL("tok-1:" + session.KeyUser)).To(Equal(8 * time.Hour))

		Expect(m.Logout(ctx)).To(Succeed())
		Expect(mr.Keys()).To(BeEmpty())
	})
})
