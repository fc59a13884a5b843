package permission_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/rbac/memory"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Permission Service", func() {
	var (
		ctx     context.Context
		store   *memory.Store
		service *permission.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New()
		service = permission.NewService(store.Permissions(), logger.Discard())
		Expect(service.SeedCatalog(ctx)).To(Succeed())
	})

	Describe("List", func() {
		It("should return the seeded catalog ordered by module", func() {
			perms, err := service.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(len(permission.Catalog)))
			Expect(perms[0].Module).To(Equal("all"))
		})

		It("should group permissions by module", func() {
			grouped, err := service.GroupByModule(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(grouped[permission.ModuleRoles]).To(HaveLen(5))
		})

		It("should wrap store failures as internal errors", func() {
			store.SetFailure(errors.New("database error"))
			_, err := service.List(ctx)
			Expect(errors.Is(err, internal.NewInternalError("", nil))).To(BeTrue())
		})
	})

	Describe("Validate", func() {
		It("should reject an empty permission set", func() {
			err := service.Validate(ctx, []string{})
			Expect(errors.Is(err, internal.ErrNoPermissions)).To(BeTrue())
		})

		It("should reject unknown keys and list them", func() {
			err := service.Validate(ctx, []string{"roles.read", "x.y", "x.y"})
			Expect(errors.Is(err, internal.ErrInvalidPermissions)).To(BeTrue())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details).To(HaveKeyWithValue("unknown", []string{"x.y"}))
		})

		It("should accept known keys", func() {
			Expect(service.Validate(ctx, []string{permission.RolesRead, permission.UsersManage})).To(Succeed())
		})
	})
})
