package audit_test

import (
	"bytes"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/access-control/internal/audit"
)

var _ = Describe("Export", func() {
	entries := func() []*audit.Entry {
		return []*audit.Entry{
			{
				ID: "01A", Timestamp: t0, Username: "alice",
				Action: audit.ActionUpdate, EntityType: audit.EntityRole, EntityName: `Ops, "night" shift`,
				Reason: "line one\nline two",
			},
			{
				ID: "01B", Timestamp: t0.Add(1500 * time.Microsecond), Username: "bob",
				Action: audit.ActionLogin, EntityType: audit.EntitySession, EntityName: "bob",
			},
		}
	}

	Describe("CSV", func() {
		It("writes the header and quotes every value", func() {
			var buf bytes.Buffer
			Expect(audit.WriteCSV(&buf, entries()[1:])).To(Succeed())

			lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(Equal(`"Timestamp","Username","Action","Entity Type","Entity Name","Reason"`))
			Expect(lines[1]).To(Equal(`"2025-03-01T09:00:00.0015Z","bob","login","session","bob",""`))
		})

		It("round-trips the exported columns", func() {
			var buf bytes.Buffer
			Expect(audit.WriteCSV(&buf, entries())).To(Succeed())

			parsed, err := audit.ParseCSV(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(HaveLen(2))
			for i, want := range entries() {
				Expect(parsed[i].Timestamp).To(BeTemporally("==", want.Timestamp))
				Expect(parsed[i].Username).To(Equal(want.Username))
				Expect(parsed[i].Action).To(Equal(want.Action))
				Expect(parsed[i].EntityType).To(Equal(want.EntityType))
				Expect(parsed[i].EntityName).To(Equal(want.EntityName))
				Expect(parsed[i].Reason).To(Equal(want.Reason))
			}
		})

		It("writes embedded line breaks as LF so they read back unchanged", func() {
			e := entries()[0]
			e.Reason = "first\r\nsecond\rthird\nfourth"
			var buf bytes.Buffer
			Expect(audit.WriteCSV(&buf, []*audit.Entry{e})).To(Succeed())
			Expect(strings.Count(buf.String(), "\r")).To(Equal(2))

			parsed, err := audit.ParseCSV(bytes.NewReader(buf.Bytes()))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(HaveLen(1))
			Expect(parsed[0].Reason).To(Equal("first\nsecond\nthird\nfourth"))

			var again bytes.Buffer
			Expect(audit.WriteCSV(&again, parsed)).To(Succeed())
			Expect(again.String()).To(Equal(buf.String()))
		})

		It("writes only the header for an empty trail", func() {
			var buf bytes.Buffer
			Expect(audit.WriteCSV(&buf, nil)).To(Succeed())

			parsed, err := audit.ParseCSV(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeEmpty())
		})

		It("rejects a foreign header", func() {
			_, err := audit.ParseCSV(strings.NewReader("a,b,c,d,e,f\n"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("JSON", func() {
		It("round-trips every field", func() {
			in := entries()
			in[0].Changes = []audit.Change{{Field: "name", OldValue: "Ops", NewValue: in[0].EntityName}}

			var buf bytes.Buffer
			Expect(audit.WriteJSON(&buf, in)).To(Succeed())

			parsed, err := audit.ParseJSON(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(HaveLen(2))
			Expect(parsed[0].ID).To(Equal("01A"))
			Expect(parsed[0].Changes).To(Equal(in[0].Changes))
			Expect(parsed[1].Timestamp).To(BeTemporally("==", in[1].Timestamp))
		})

		It("encodes an empty trail as an empty array", func() {
			var buf bytes.Buffer
			Expect(audit.WriteJSON(&buf, nil)).To(Succeed())
			Expect(strings.TrimSpace(buf.String())).To(Equal("[]"))
		})
	})

	Describe("ParseFormat", func() {
		It("defaults to csv and rejects unknown formats", func() {
			Expect(audit.ParseFormat("")).To(Equal(audit.FormatCSV))
			Expect(audit.ParseFormat("JSON")).To(Equal(audit.FormatJSON))
			_, err := audit.ParseFormat("xml")
			Expect(err).To(HaveOccurred())
		})
	})
})
