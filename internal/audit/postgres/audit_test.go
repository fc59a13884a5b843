package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/frahmantamala/access-control/internal/audit/postgres"
)

var columns = []string{"id", "occurred_at", "user_id", "username", "action", "entity_type",
	"entity_id", "entity_name", "changes", "reason", "ip_address", "user_agent"}

var _ = Describe("AuditRepository", func() {
	var (
		mock sqlmock.Sqlmock
		repo *postgres.AuditRepository
		ctx  context.Context
		at   time.Time
	)

	BeforeEach(func() {
		db, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		mock = m
		repo = postgres.NewAuditRepository(sqlx.NewDb(db, "pgx"))
		ctx = context.Background()
		at = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Append", func() {
		It("inserts the entry with its changes encoded as json", func() {
			mock.ExpectExec(`INSERT INTO audit_logs`).
				WithArgs("01J", at, "u-1", "alice", "update", "role", "r-1", "Editor",
					[]byte(`[{"field":"name","old_value":"Ed","new_value":"Editor"}]`), "", "10.0.0.1", "curl").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.Append(ctx, &audit.Entry{
				ID: "01J", Timestamp: at, UserID: "u-1", Username: "alice",
				Action: audit.ActionUpdate, EntityType: audit.EntityRole, EntityID: "r-1", EntityName: "Editor",
				Changes:   []audit.Change{{Field: "name", OldValue: "Ed", NewValue: "Editor"}},
				IPAddress: "10.0.0.1", UserAgent: "curl",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("wraps database failures", func() {
			mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("connection reset"))

			err := repo.Append(ctx, &audit.Entry{ID: "01J", Timestamp: at})
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
		})
	})

	Describe("Query", func() {
		It("combines set filter fields with AND in postgres placeholders", func() {
			mock.ExpectQuery(`WHERE user_id = \$1 AND action = \$2 AND occurred_at >= \$3 ORDER BY occurred_at DESC, id DESC LIMIT \$4`).
				WithArgs("u-1", "login", at, 10).
				WillReturnRows(sqlmock.NewRows(columns).
					AddRow("01J", at, "u-1", "alice", "login", "session", "s-1", "alice", []byte(`[]`), "", "", ""))

			entries, err := repo.Query(ctx, audit.Filter{UserID: "u-1", Action: audit.ActionLogin, From: at, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Action).To(Equal(audit.ActionLogin))
			Expect(entries[0].EntityType).To(Equal(audit.EntitySession))
			Expect(entries[0].Changes).To(BeNil())
		})

		It("returns the newest rows under a limit in ascending order", func() {
			mock.ExpectQuery(`FROM audit_logs ORDER BY occurred_at DESC, id DESC LIMIT \$1`).
				WithArgs(2).
				WillReturnRows(sqlmock.NewRows(columns).
					AddRow("01L", at.Add(2*time.Minute), "u-1", "alice", "update", "user", "u-2", "bob", nil, "", "", "").
					AddRow("01K", at.Add(time.Minute), "u-1", "alice", "update", "role", "r-1", "ops", nil, "", "", ""))

			entries, err := repo.Query(ctx, audit.Filter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ID).To(Equal("01K"))
			Expect(entries[1].ID).To(Equal("01L"))
		})

		It("decodes stored changes", func() {
			mock.ExpectQuery(`SELECT .* FROM audit_logs ORDER BY`).
				WillReturnRows(sqlmock.NewRows(columns).
					AddRow("01J", at, "u-1", "alice", "role_change", "user", "u-2", "bob",
						[]byte(`[{"field":"role","old_value":"viewer","new_value":"admin"}]`), "", "", ""))

			entries, err := repo.Query(ctx, audit.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries[0].Changes).To(ConsistOf(audit.Change{Field: "role", OldValue: "viewer", NewValue: "admin"}))
		})
	})
})
