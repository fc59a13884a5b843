package cmd

import (
	"context"

	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/core/rbac/memory"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = Describe("Seeder", func() {
	var (
		ctx    context.Context
		store  *memory.Store
		seeder *Seeder
		a      adminSeed
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New()
		seeder = &Seeder{
			Permissions: permission.NewService(store.Permissions(), logger.Discard()),
			Roles:       store.Roles(),
			Users:       store.Users(),
			BcryptCost:  bcrypt.MinCost,
			Logger:      logger.Discard(),
		}
		a = adminSeed{Username: "admin", Email: "Admin@Example.com", FullName: "Admin", Password: "correct-horse"}
	})

	It("seeds the catalog, the system roles and an active super admin", func() {
		Expect(seeder.Run(ctx, a)).To(Succeed())

		perms, err := store.Permissions().List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(perms).To(HaveLen(len(permission.Catalog)))

		superAdmin, err := store.Roles().GetByKey(ctx, RoleSuperAdmin)
		Expect(err).NotTo(HaveOccurred())
		Expect(superAdmin).NotTo(BeNil())
		Expect(superAdmin.IsSystem).To(BeTrue())
		Expect(superAdmin.GrantsAdmin()).To(BeTrue())
		Expect(superAdmin.Permissions).To(ConsistOf(permission.AllManage))

		viewer, err := store.Roles().GetByKey(ctx, RoleViewer)
		Expect(err).NotTo(HaveOccurred())
		Expect(viewer.GrantsAdmin()).To(BeFalse())

		u, err := store.Users().GetByUsername(ctx, "admin")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).NotTo(BeNil())
		Expect(u.IsActive()).To(BeTrue())
		Expect(u.Email).To(Equal("admin@example.com"))
		Expect(u.RoleID).To(Equal(superAdmin.ID))
		Expect(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse"))).To(Succeed())
	})

	It("leaves existing roles and users alone on a second run", func() {
		Expect(seeder.Run(ctx, a)).To(Succeed())
		first, err := store.Users().GetByUsername(ctx, "admin")
		Expect(err).NotTo(HaveOccurred())

		a.Password = "another-password"
		Expect(seeder.Run(ctx, a)).To(Succeed())

		roles, err := store.Roles().List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(roles).To(HaveLen(len(systemRoles)))

		again, err := store.Users().GetByUsername(ctx, "admin")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.ID).To(Equal(first.ID))
		Expect(again.PasswordHash).To(Equal(first.PasswordHash))
	})

	It("only references catalog keys from the system roles", func() {
		known := permission.CatalogKeys()
		for _, r := range systemRoles {
			Expect(known).To(ContainElements(r.Permissions), "role %s", r.Key)
		}
	})

	It("rejects a short admin password", func() {
		a.Password = "short"
		Expect(seeder.Run(ctx, a)).To(MatchError(ContainSubstring("admin password")))

		u, err := store.Users().GetByUsername(ctx, "admin")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(BeNil())
	})

	It("does not overwrite a pre-existing role with the same key", func() {
		store.PutRole(&rbac.Role{ID: "custom", Key: RoleViewer, Name: "Custom viewer", IsActive: true})
		Expect(seeder.Run(ctx, a)).To(Succeed())

		viewer, err := store.Roles().GetByKey(ctx, RoleViewer)
		Expect(err).NotTo(HaveOccurred())
		Expect(viewer.ID).To(Equal("custom"))
		Expect(viewer.Name).To(Equal("Custom viewer"))
	})
})
