package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subj(id, token, origin string) models.Subject {
	return models.Subject{SubjectID: id, RatingToken: token, Origin: models.ParseOrigin(origin)}
}

func openLedger(t *testing.T, dir, session string) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), dir, session, logging.Discard())
	require.NoError(t, err)
	return l
}

func ids(subjects []models.Subject) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, s.SubjectID)
	}
	return out
}

func TestMerge_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir(), "S1")

	n, err := l.Merge(ctx, []models.Subject{subj("a", "ta1", "compatibles"), subj("b", "tb1", "standouts")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.Merge(ctx, []models.Subject{subj("a", "ta2", "compatibles"), subj("c", "tc1", "compatibles")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, "ta1", got.RatingToken)
	assert.Equal(t, []string{"a", "b", "c"}, ids(l.Snapshot()))
}

func TestMerge_DuplicateWithinBatchAndEmptyID(t *testing.T) {
	l := openLedger(t, t.TempDir(), "S1")

	n, err := l.Merge(context.Background(), []models.Subject{
		subj("a", "first", ""), subj("a", "second", ""), subj("", "orphan", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ := l.Get("a")
	assert.Equal(t, "first", got.RatingToken)
}

func TestMerge_RandomSequencesNeverDuplicate(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, t.TempDir(), "S1")
	rng := rand.New(rand.NewSource(7))
	firstToken := map[string]string{}

	for round := 0; round < 25; round++ {
		batch := make([]models.Subject, 0, 8)
		for i := 0; i < 8; i++ {
			id := fmt.Sprintf("s%d", rng.Intn(30))
			token := fmt.Sprintf("t%d-%d", round, i)
			if _, seen := firstToken[id]; !seen {
				firstToken[id] = token
			}
			batch = append(batch, subj(id, token, "compatibles"))
		}
		_, err := l.Merge(ctx, batch)
		require.NoError(t, err)
	}

	snap := l.Snapshot()
	seen := map[string]bool{}
	for _, s := range snap {
		require.False(t, seen[s.SubjectID], "duplicate %s", s.SubjectID)
		seen[s.SubjectID] = true
		assert.Equal(t, firstToken[s.SubjectID], s.RatingToken)
	}
	assert.Len(t, snap, len(firstToken))
}

func TestPersistence_ReloadPreservesOrderAndOrigin(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLedger(t, dir, "S1")

	_, err := l.Merge(ctx, []models.Subject{
		subj("z", "tz", "compatibles"), subj("a", "ta", "weird_bucket"), subj("m", "tm", ""),
	})
	require.NoError(t, err)

	reloaded := openLedger(t, dir, "S1")
	assert.Equal(t, l.Snapshot(), reloaded.Snapshot())
	got, _ := reloaded.Get("a")
	assert.True(t, got.Origin.IsUnrecognized())
	assert.Equal(t, "weird_bucket", got.Origin.Raw())
}

func TestPersistence_FileIsMapping(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLedger(t, dir, "S1")
	_, err := l.Merge(ctx, []models.Subject{subj("a", "ta", "compatibles")})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "recommendations_S1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"rating_token":"ta","origin":"compatibles"}}`, string(raw))
}

func TestPersistence_FileKeysFollowInsertionOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLedger(t, dir, "S1")
	_, err := l.Merge(ctx, []models.Subject{subj("z", "tz", ""), subj("a", "ta", ""), subj("m", "tm", "")})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "recommendations_S1.json"))
	require.NoError(t, err)
	text := string(raw)
	assert.NotContains(t, text, `"order"`)
	z, a, m := bytes.Index(raw, []byte(`"z"`)), bytes.Index(raw, []byte(`"a"`)), bytes.Index(raw, []byte(`"m"`))
	require.True(t, z >= 0 && a >= 0 && m >= 0, text)
	assert.True(t, z < a && a < m, "keys out of insertion order: %s", text)
}

func TestRemove_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := Open(ctx, dir, "S1", logging.NewTextLogger(&buf, slog.LevelDebug))
	require.NoError(t, err)

	_, err = l.Merge(ctx, []models.Subject{subj("a", "ta", ""), subj("b", "tb", "")})
	require.NoError(t, err)

	require.NoError(t, l.Remove(ctx, "a"))
	once := l.Snapshot()
	require.NoError(t, l.Remove(ctx, "a"))
	assert.Equal(t, once, l.Snapshot())
	assert.Equal(t, []string{"b"}, ids(once))
	assert.Contains(t, buf.String(), "subject not in ledger")

	assert.Equal(t, once, openLedger(t, dir, "S1").Snapshot())
}

func TestOpen_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName("S1")), []byte(`{"a": [`), 0o600))

	l := openLedger(t, dir, "S1")
	assert.Equal(t, 0, l.Len())

	_, err := l.Merge(context.Background(), []models.Subject{subj("b", "tb", "")})
	require.NoError(t, err)
	assert.Equal(t, 1, openLedger(t, dir, "S1").Len())
}

func TestLedgersAreIsolatedBySession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	one := openLedger(t, dir, "S1")
	_, err := one.Merge(ctx, []models.Subject{subj("a", "ta", "")})
	require.NoError(t, err)

	two := openLedger(t, dir, "S2")
	assert.Equal(t, 0, two.Len())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLedger(t, dir, "S1")
	_, err := l.Merge(ctx, []models.Subject{subj("a", "ta", "")})
	require.NoError(t, err)

	require.NoError(t, l.Reset(ctx))
	assert.Empty(t, l.Snapshot())
	assert.Equal(t, 0, openLedger(t, dir, "S1").Len())
}

func TestMerge_PersistFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLedger(t, dir, "S1")
	_, err := l.Merge(ctx, []models.Subject{subj("a", "ta", "")})
	require.NoError(t, err)

	l.path = filepath.Join(dir, "missing-parent-is-a-file", FileName("S1"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "missing-parent-is-a-file"), []byte("x"), 0o600))

	_, err = l.Merge(ctx, []models.Subject{subj("b", "tb", "")})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, ids(l.Snapshot()))

	require.Error(t, l.Remove(ctx, "a"))
	assert.Equal(t, 1, l.Len())
}
