package permission_test

import (
	"github.com/frahmantamala/access-control/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Index", func() {
	keys := []string{"roles.read", "roles.delete", "users.read", "audit.export", "users.read"}

	It("should report every key it was built from", func() {
		idx := permission.NewIndex(keys)
		for _, k := range keys {
			Expect(idx.Has(k)).To(BeTrue(), k)
		}
		Expect(idx.Len()).To(Equal(4))
	})

	It("should report absent keys as false", func() {
		idx := permission.NewIndex(keys)
		Expect(idx.Has("roles.create")).To(BeFalse())
		Expect(idx.Has("")).To(BeFalse())
		Expect(idx.Has("roles")).To(BeFalse())
	})

	It("should answer HasAny and HasAll", func() {
		idx := permission.NewIndex(keys)
		Expect(idx.HasAny("x.y", "roles.read")).To(BeTrue())
		Expect(idx.HasAny("x.y", "z.w")).To(BeFalse())
		Expect(idx.HasAny()).To(BeFalse())
		Expect(idx.HasAll("roles.read", "users.read")).To(BeTrue())
		Expect(idx.HasAll("roles.read", "roles.create")).To(BeFalse())
		Expect(idx.HasAll()).To(BeTrue())
	})

	It("should group keys by module in sorted order", func() {
		idx := permission.NewIndex(keys)
		Expect(idx.KeysForModule("roles")).To(Equal([]string{"roles.delete", "roles.read"}))
		Expect(idx.KeysForModule("settings")).To(BeEmpty())
	})

	It("should not be affected by later changes to the input slice", func() {
		input := []string{"roles.read"}
		idx := permission.NewIndex(input)
		input[0] = "roles.delete"
		Expect(idx.Has("roles.read")).To(BeTrue())
		Expect(idx.Has("roles.delete")).To(BeFalse())
	})

	It("should treat a nil index as empty", func() {
		var idx *permission.Index
		Expect(idx.Has("roles.read")).To(BeFalse())
		Expect(idx.Keys()).To(BeEmpty())
		Expect(idx.Len()).To(Equal(0))
	})

	Describe("ParseKey", func() {
		It("should split on the last dot", func() {
			module, action := permission.ParseKey("reports.finance.read")
			Expect(module).To(Equal("reports.finance"))
			Expect(action).To(Equal("read"))
		})

		It("should return an empty action when there is no dot", func() {
			module, action := permission.ParseKey("dashboard")
			Expect(module).To(Equal("dashboard"))
			Expect(action).To(BeEmpty())
		})
	})

	It("should ship a catalog whose keys parse into module and action", func() {
		for _, p := range permission.Catalog {
			module, action := permission.ParseKey(p.Key)
			Expect(module).To(Equal(p.Module), p.Key)
			Expect(action).To(Equal(p.Action), p.Key)
		}
	})
})
