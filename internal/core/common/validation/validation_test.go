package validation_test

import (
	"testing"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

type createRole struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Key         string   `json:"key" validate:"required,role_key"`
	Permissions []string `json:"permissions" validate:"min=1"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email"`
}

func fields(err *internal.AppError) []string {
	details, ok := err.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	out := []string{}
	for _, e := range details.Errors {
		out = append(out, e.Field)
	}
	return out
}

var _ = Describe("Struct", func() {
	It("accepts a valid payload", func() {
		Expect(validation.Struct(createRole{Name: "Ops", Key: "ops_team", Permissions: []string{"users.read"}})).To(BeNil())
	})

	It("reports every failing field by its json name", func() {
		err := validation.Struct(createRole{Key: "Ops Team", Email: "nope"})
		Expect(err).NotTo(BeNil())
		Expect(err.Code).To(Equal(internal.ErrCodeValidationFailed))
		Expect(fields(err)).To(ConsistOf("name", "key", "permissions", "email"))
	})
})

var _ = Describe("ValidationBuilder", func() {
	It("collects field and struct failures together", func() {
		v := validation.NewValidator().Struct(createRole{Name: "Ops", Key: "ops", Permissions: nil})
		v.Field("status", "frozen").OneOf("active", "inactive", "suspended")
		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(fields(err)).To(ConsistOf("permissions", "status"))
	})

	It("enforces the password policy", func() {
		Expect(validation.ValidatePassword("short")).NotTo(BeNil())
		Expect(validation.ValidatePassword("long enough")).To(BeNil())
	})
})
