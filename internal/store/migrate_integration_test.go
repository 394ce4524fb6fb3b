// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accounts/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })
		// Containers run in random order; start from an empty schema.
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version 0", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every embedded migration", func() {
		Expect(migrator.Up()).To(Succeed())

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Pending).To(BeEmpty())
		Expect(st.Applied).To(HaveLen(2))
		Expect(st.Version).To(Equal(uint(2)))
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back and forward again", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
	})

	It("forces a version without running it", func() {
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Force(2)).To(Succeed())
	})
})

var _ = Describe("Schema", Ordered, func() {
	var pool *pgxpool.Pool

	BeforeAll(func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		pool, err = store.Connect(suiteCtx, connStr, 3, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	BeforeEach(func() {
		_, err := pool.Exec(suiteCtx, `TRUNCATE users CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	insertUser := func(id, email, username string) error {
		_, err := pool.Exec(suiteCtx,
			`INSERT INTO users (id, email, username, password_hash) VALUES ($1, $2, $3, 'x')`,
			id, email, username)
		return err
	}

	constraintOf := func(err error) string {
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
		return pgErr.ConstraintName
	}

	It("treats email case-insensitively", func() {
		Expect(insertUser("01J00000000000000000000001", "Pia@Example.com", "pia")).To(Succeed())
		err := insertUser("01J00000000000000000000002", "pia@example.com", "other")
		Expect(err).To(HaveOccurred())
		Expect(constraintOf(err)).To(Equal("users_email_lower_key"))
	})

	It("treats username case-insensitively", func() {
		Expect(insertUser("01J00000000000000000000001", "a@example.com", "Pia")).To(Succeed())
		err := insertUser("01J00000000000000000000002", "b@example.com", "PIA")
		Expect(err).To(HaveOccurred())
		Expect(constraintOf(err)).To(Equal("users_username_lower_key"))
	})

	It("removes sessions with their user", func() {
		Expect(insertUser("01J00000000000000000000001", "a@example.com", "pia")).To(Succeed())
		_, err := pool.Exec(suiteCtx, `
			INSERT INTO web_sessions (id, user_id, token_hash, auth_hash, expires_at)
			VALUES ('01J0000000000000000000000S', '01J00000000000000000000001', 'h', 'a', NOW() + INTERVAL '1 hour')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(suiteCtx, `DELETE FROM users WHERE id = '01J00000000000000000000001'`)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(pool.QueryRow(suiteCtx, `SELECT COUNT(*) FROM web_sessions`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})
})
