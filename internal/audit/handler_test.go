package audit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
)

var _ = Describe("Handler", func() {
	var handler *audit.Handler

	BeforeEach(func() {
		recorder := audit.NewRecorder(audit.NewMemoryStore(), clock.NewFake(t0), logger.Discard())
		ctx := context.Background()
		recorder.Record(ctx, audit.Entry{UserID: "u1", Username: "alice", Action: audit.ActionLogin, EntityType: audit.EntitySession, EntityName: "alice"})
		recorder.Record(ctx, audit.Entry{UserID: "u2", Username: "bob", Action: audit.ActionCreate, EntityType: audit.EntityRole, EntityName: "Ops"})
		handler = audit.NewHandler(transport.NewBaseHandler(logger.Discard()), recorder)
	})

	get := func(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	It("filters entries from the query string", func() {
		rec := get(handler.ListEntries, "/audit?user_id=u2")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"count":1`))
		Expect(rec.Body.String()).To(ContainSubstring(`"username":"bob"`))
	})

	It("rejects an unknown action", func() {
		rec := get(handler.ListEntries, "/audit?action=launch")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a malformed timestamp", func() {
		rec := get(handler.ListEntries, "/audit?from=yesterday")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("exports CSV by default", func() {
		rec := get(handler.Export, "/audit/export")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/csv"))
		Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring(".csv"))

		parsed, err := audit.ParseCSV(strings.NewReader(rec.Body.String()))
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(HaveLen(2))
	})

	It("exports JSON on request", func() {
		rec := get(handler.Export, "/audit/export?format=json")
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		parsed, err := audit.ParseJSON(rec.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(HaveLen(2))
	})

	It("rejects an unsupported format", func() {
		rec := get(handler.Export, "/audit/export?format=xml")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
