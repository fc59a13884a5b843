package cmd

import (
	"time"

	"github.com/frahmantamala/access-control/internal/audit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("audit export options", func() {
	It("builds a filter from the flags", func() {
		f, err := auditExportOptions{
			From:       "2024-03-01T00:00:00Z",
			To:         "2024-03-31T23:59:59Z",
			UserID:     "u-1",
			Action:     "role_change",
			EntityType: "user",
			Limit:      50,
		}.filter()
		Expect(err).NotTo(HaveOccurred())
		Expect(f.From).To(Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
		Expect(f.To).To(Equal(time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)))
		Expect(f.UserID).To(Equal("u-1"))
		Expect(f.Action).To(Equal(audit.ActionRoleChange))
		Expect(f.EntityType).To(Equal(audit.EntityUser))
		Expect(f.Limit).To(Equal(50))
	})

	It("matches everything when no flags are set", func() {
		f, err := auditExportOptions{}.filter()
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(audit.Filter{}))
	})

	DescribeTable("rejects bad flags",
		func(o auditExportOptions, msg string) {
			_, err := o.filter()
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("unknown action", auditExportOptions{Action: "approve"}, "unknown action"),
		Entry("unknown entity", auditExportOptions{EntityType: "expense"}, "unknown entity type"),
		Entry("malformed from", auditExportOptions{From: "yesterday"}, "invalid --from"),
		Entry("malformed to", auditExportOptions{To: "2024-13-01"}, "invalid --to"),
		Entry("inverted range", auditExportOptions{From: "2024-03-02T00:00:00Z", To: "2024-03-01T00:00:00Z"}, "before --from"),
	)
})
