//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/audit"
	"pennywise/internal/model"
	"pennywise/internal/recurring"
)

// Run with: PENNYWISE_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PENNYWISE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PENNYWISE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrate is repeatable")
	return pool
}

// Every test uses fresh owner ids so runs against a shared database do not
// see each other's rows.
func owner() string { return "owner-" + uuid.NewString() }

func rentSpec(due time.Time) model.RuleSpec {
	return model.RuleSpec{
		Amount:      decimal.RequireFromString("1200.50"),
		Kind:        model.KindExpense,
		Category:    "Housing",
		Description: "Rent",
		Frequency:   model.FrequencyMonthly,
		NextDueAt:   due,
	}
}

func TestRuleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository(openPool(t))
	alice, bob := owner(), owner()
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rule, err := repo.Create(ctx, alice, rentSpec(due))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.GetByID(ctx, alice, rule.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1200.5").Equal(got.Amount))
		assert.True(t, due.Equal(got.NextDueAt))
		assert.True(t, got.Active)
		assert.Nil(t, got.LastExecutedAt)
	})

	t.Run("owner scoped", func(t *testing.T) {
		_, err := repo.GetByID(ctx, bob, rule.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		_, err = repo.GetByID(ctx, alice, "not-a-uuid")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		ok, err := repo.Deactivate(ctx, bob, rule.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sparse update", func(t *testing.T) {
		category := "Home"
		got, err := repo.Update(ctx, alice, rule.ID, model.RulePatch{Category: &category})
		require.NoError(t, err)
		assert.Equal(t, "Home", got.Category)
		assert.Equal(t, "Rent", got.Description)
		assert.False(t, got.UpdatedAt.Before(rule.UpdatedAt))
	})

	t.Run("conditional advance", func(t *testing.T) {
		executed := due.Add(24 * time.Hour)
		next := due.Add(30 * 24 * time.Hour)

		ok, err := repo.AdvanceScheduleIf(ctx, rule.ID, due.Add(time.Microsecond), executed, next)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.AdvanceScheduleIf(ctx, rule.ID, due, executed, next)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, alice, rule.ID)
		require.NoError(t, err)
		assert.True(t, next.Equal(got.NextDueAt))
		require.NotNil(t, got.LastExecutedAt)
		assert.True(t, executed.Equal(*got.LastExecutedAt))
	})

	t.Run("deactivate is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			ok, err := repo.Deactivate(ctx, alice, rule.ID)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		rules, total, err := repo.List(ctx, alice, model.DefaultRuleFilter(), 1, 20)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, rules)

		_, total, err = repo.List(ctx, alice, model.RuleFilter{}, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestRuleRepositorySelectDue(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository(openPool(t))
	o := owner()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	early, err := repo.Create(ctx, o, rentSpec(now.Add(-48*time.Hour)))
	require.NoError(t, err)
	exact, err := repo.Create(ctx, o, rentSpec(now))
	require.NoError(t, err)
	_, err = repo.Create(ctx, o, rentSpec(now.Add(time.Microsecond)))
	require.NoError(t, err)
	off, err := repo.Create(ctx, o, rentSpec(now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.Deactivate(ctx, o, off.ID)
	require.NoError(t, err)

	due, err := repo.SelectDue(ctx, now)
	require.NoError(t, err)
	var mine []string
	for _, r := range due {
		if r.OwnerID == o {
			mine = append(mine, r.ID)
		}
	}
	assert.Equal(t, []string{early.ID, exact.ID}, mine)
}

func TestTransactionRepositoryFind(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(openPool(t))
	o := owner()
	ruleID, otherRule := uuid.NewString(), uuid.NewString()
	amount := decimal.RequireFromString("10.5")

	draft := func(day int, stamp *string) model.TransactionDraft {
		return model.TransactionDraft{
			Date:            time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
			Amount:          amount,
			Kind:            model.KindIncome,
			Category:        "Interest",
			Source:          model.SourceRecurring,
			IsRecurring:     true,
			RecurringRuleID: stamp,
		}
	}
	for _, d := range []model.TransactionDraft{draft(1, &ruleID), draft(3, &ruleID), draft(2, nil), draft(4, &otherRule)} {
		_, err := repo.Create(ctx, o, d)
		require.NoError(t, err)
	}

	txs, total, err := repo.Find(ctx, o, model.TransactionMatch{
		Source:   model.SourceRecurring,
		Kind:     model.KindIncome,
		Category: "Interest",
		Amount:   decimal.RequireFromString("10.50"),
		RuleID:   ruleID,
	}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, txs, 3)
	assert.Equal(t, 3, txs[0].Date.Day())
	assert.Nil(t, txs[1].RecurringRuleID)
	assert.Equal(t, 1, txs[2].Date.Day())
}

func TestUserRepositoryConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openPool(t))
	email := uuid.NewString() + "@example.com"

	_, err := repo.Create(ctx, email, "hash")
	require.NoError(t, err)
	_, err = repo.Create(ctx, email, "hash")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestEngineOverPostgres(t *testing.T) {
	ctx := context.Background()
	pool := openPool(t)
	rules := NewRuleRepository(pool)
	txs := NewTransactionRepository(pool)
	o := owner()
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 := jan1.Add(24 * time.Hour)

	rule, err := rules.Create(ctx, o, rentSpec(jan1))
	require.NoError(t, err)

	engine := recurring.NewEngine(rules, txs, audit.NewRecorder(NewAuditRepository(pool), nil, zap.NewNop()), zap.NewNop(),
		recurring.WithConditionalAdvance(true))
	rec, err := engine.ExecuteOne(ctx, *rule, jan2)
	require.NoError(t, err)
	assert.Equal(t, recurring.OutcomeSucceeded, rec.Outcome)

	got, err := rules.GetByID(ctx, o, rule.ID)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC).Equal(got.NextDueAt))
}
