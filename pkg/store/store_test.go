package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/records"
)

type testSigner struct {
	keyID string
	pub   string
	priv  string
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := crypto.GenerateKeys()
	require.NoError(t, err)
	return &testSigner{keyID: "human:tester", pub: pub, priv: priv}
}

func (s *testSigner) resolver() PublicKeyResolver {
	return func(ctx context.Context, keyID string) (string, error) {
		return s.pub, nil
	}
}

func (s *testSigner) signedTaskRecord(t *testing.T, title string) (string, *records.Record) {
	t.Helper()
	task, err := records.NewTask(records.Task{Title: title, Description: "d"}, time.Unix(1756100000, 0))
	require.NoError(t, err)
	rec, err := records.NewRecord(records.RecordTypeTask, task)
	require.NoError(t, err)
	sig, err := crypto.SignChecksum(rec.Header.PayloadChecksum, s.priv, s.keyID, "author", "")
	require.NoError(t, err)
	rec.Header.Signatures = append(rec.Header.Signatures, sig)
	return task.ID, rec
}

func newTestStore(t *testing.T, signer *testSigner) *Store {
	t.Helper()
	st, err := New(t.TempDir(), records.RecordTypeTask, signer.resolver(), nil)
	require.NoError(t, err)
	return st
}

func TestPutGet_RoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "round trip")
	require.NoError(t, st.Put(ctx, id, rec))

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.Header.PayloadChecksum, got.Header.PayloadChecksum)

	task, err := records.Decode[records.Task](got)
	require.NoError(t, err)
	assert.Equal(t, "round trip", task.Title)
}

func TestGet_NotFound(t *testing.T) {
	st := newTestStore(t, newTestSigner(t))
	_, err := st.Get(context.Background(), "1756100000-task-missing")
	var nf *RecordNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "1756100000-task-missing", nf.ID)
}

func TestGet_CorruptPayload(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "to corrupt")
	require.NoError(t, st.Put(ctx, id, rec))

	// Flip the payload on disk without touching the checksum.
	path := filepath.Join(st.Dir(), id+".json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk records.Record
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	var task records.Task
	require.NoError(t, json.Unmarshal(onDisk.Payload, &task))
	task.Title = "tampered"
	tampered, err := json.Marshal(task)
	require.NoError(t, err)
	onDisk.Payload = tampered
	out, err := json.Marshal(&onDisk)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))

	_, err = st.Get(ctx, id)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestGet_BadSignature(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)
	// Resolve against the wrong key: the stored signature must not verify.
	st, err := New(t.TempDir(), records.RecordTypeTask, other.resolver(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "wrong key")
	require.NoError(t, st.Put(ctx, id, rec))

	_, err = st.Get(ctx, id)
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
}

func TestGet_PlaceholderSignatureSkipsVerification(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "placeholder")
	rec.Header.Signatures[0].Signature = crypto.PlaceholderSignature
	require.NoError(t, st.Put(ctx, id, rec))

	_, err := st.Get(ctx, id)
	require.NoError(t, err)
}

func TestGet_RejectsUnsigned(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "unsigned")
	rec.Header.Signatures = nil
	require.NoError(t, st.Put(ctx, id, rec))

	_, err := st.Get(ctx, id)
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
}

func TestPut_RejectsChecksumDrift(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)

	id, rec := signer.signedTaskRecord(t, "drift")
	rec.Header.PayloadChecksum = "deadbeef"
	err := st.Put(context.Background(), id, rec)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestPut_NoTempFileLeftBehind(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	id, rec := signer.signedTaskRecord(t, "atomic")
	require.NoError(t, st.Put(ctx, id, rec))

	entries, err := os.ReadDir(st.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestListExistsDelete(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)
	ctx := context.Background()

	idA, recA := signer.signedTaskRecord(t, "alpha")
	idB, recB := signer.signedTaskRecord(t, "beta")
	require.NoError(t, st.Put(ctx, idA, recA))
	require.NoError(t, st.Put(ctx, idB, recB))

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{idA, idB}, ids)

	ok, err := st.Exists(ctx, idA)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.Delete(ctx, idA))
	ok, err = st.Exists(ctx, idA)
	require.NoError(t, err)
	assert.False(t, ok)

	err = st.Delete(ctx, idA)
	var nf *RecordNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestPut_CancelledContext(t *testing.T) {
	signer := newTestSigner(t)
	st := newTestStore(t, signer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, rec := signer.signedTaskRecord(t, "cancelled")
	err := st.Put(ctx, id, rec)
	require.ErrorIs(t, err, context.Canceled)

	ok, statErr := st.Exists(context.Background(), id)
	require.NoError(t, statErr)
	assert.False(t, ok, "a cancelled put must leave no state change")
}
