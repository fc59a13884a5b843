package ability_test

import (
	"testing"

	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAbility(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ability Suite")
}

var allActions = []ability.Action{ability.Create, ability.Read, ability.Update, ability.Delete, ability.Manage}

var _ = Describe("Engine", func() {
	Context("when built from a manage rule", func() {
		var engine *ability.Engine

		BeforeEach(func() {
			engine = ability.FromRules([]ability.Rule{{Subject: "roles", Action: ability.Manage}})
		})

		It("should grant every CRUD action on that subject", func() {
			Expect(engine.Can(ability.Delete, "roles")).To(BeTrue())
			Expect(engine.Can(ability.Create, "roles")).To(BeTrue())
			Expect(engine.Can(ability.Read, "roles")).To(BeTrue())
			Expect(engine.Can(ability.Update, "roles")).To(BeTrue())
			Expect(engine.Can(ability.Manage, "roles")).To(BeTrue())
		})

		It("should not leak onto other subjects", func() {
			Expect(engine.Can(ability.Read, "users")).To(BeFalse())
			Expect(engine.Cannot(ability.Read, "users")).To(BeTrue())
		})
	})

	Context("when built from an empty permission list", func() {
		It("should deny every action on every subject", func() {
			for _, engine := range []*ability.Engine{
				ability.FromKeys(nil),
				ability.FromKeys([]string{}),
				ability.FromRules(nil),
				ability.Empty(),
			} {
				for _, a := range allActions {
					for _, s := range []string{"roles", "users", "audit", ability.SubjectAll, ""} {
						Expect(engine.Can(a, s)).To(BeFalse())
					}
				}
				Expect(engine.Rules()).To(BeEmpty())
			}
		})
	})

	Context("when built from permission keys", func() {
		It("should map CRUD keys one to one", func() {
			engine := ability.FromKeys([]string{"users.read", "users.update"})
			Expect(engine.Can(ability.Read, "users")).To(BeTrue())
			Expect(engine.Can(ability.Update, "users")).To(BeTrue())
			Expect(engine.Can(ability.Delete, "users")).To(BeFalse())
			Expect(engine.Can(ability.Manage, "users")).To(BeFalse())
		})

		It("should normalize legacy verbs", func() {
			engine := ability.FromKeys([]string{"reports.view", "reports.edit", "tags.add", "tags.remove", "logs.list"})
			Expect(engine.Can(ability.Read, "reports")).To(BeTrue())
			Expect(engine.Can(ability.Update, "reports")).To(BeTrue())
			Expect(engine.Can(ability.Create, "tags")).To(BeTrue())
			Expect(engine.Can(ability.Delete, "tags")).To(BeTrue())
			Expect(engine.Can(ability.Read, "logs")).To(BeTrue())
		})

		It("should keep non-vocabulary keys queryable without granting a rule", func() {
			engine := ability.FromKeys([]string{permission.AuditExport})
			Expect(engine.Has(permission.AuditExport)).To(BeTrue())
			Expect(engine.Rules()).To(BeEmpty())
			for _, a := range allActions {
				Expect(engine.Can(a, permission.ModuleAudit)).To(BeFalse())
			}
		})

		It("should treat all.manage as full access", func() {
			engine := ability.FromKeys([]string{permission.AllManage})
			for _, a := range allActions {
				Expect(engine.Can(a, "roles")).To(BeTrue())
				Expect(engine.Can(a, "anything")).To(BeTrue())
			}
		})

		It("should apply actions on the all subject to every subject", func() {
			engine := ability.FromKeys([]string{"all.read"})
			Expect(engine.Can(ability.Read, "roles")).To(BeTrue())
			Expect(engine.Can(ability.Update, "roles")).To(BeFalse())
		})

		It("should return sorted, de-duplicated rules", func() {
			engine := ability.FromRules([]ability.Rule{
				{Subject: "users", Action: ability.Read},
				{Subject: "roles", Action: ability.Read},
				{Subject: "users", Action: ability.Read},
			})
			Expect(engine.Rules()).To(Equal([]ability.Rule{
				{Subject: "roles", Action: ability.Read},
				{Subject: "users", Action: ability.Read},
			}))
		})
	})

	It("should deny everything on a nil engine", func() {
		var engine *ability.Engine
		Expect(engine.Can(ability.Read, "roles")).To(BeFalse())
		Expect(engine.Has("roles.read")).To(BeFalse())
	})
})
