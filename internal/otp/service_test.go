package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mareye-api/internal/hashing"
)

type fakeSender struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func (f *fakeSender) SendOTP(_ context.Context, to, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes == nil {
		f.codes = make(map[string][]string)
	}
	f.codes[to] = append(f.codes[to], code)
	return f.err
}

func (f *fakeSender) last(to string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.codes[to]
	return c[len(c)-1]
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var testParams = hashing.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestService(t *testing.T, opts Options) (*Service, *MemoryStore, *fakeSender, *clock) {
	t.Helper()
	store := NewMemoryStore()
	sender := &fakeSender{}
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clk.now
	return NewService(store, sender, hashing.NewHasher("pepper", testParams), opts, nil), store, sender, clk
}

func wrong(code string) string {
	if code == "999999" {
		return "100000"
	}
	return "999999"
}

func TestGenerateCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

func TestIssueAndVerifyReturnsPayload(t *testing.T) {
	svc, store, sender, _ := newTestService(t, Options{})
	ctx := context.Background()
	payload := json.RawMessage(`{"username":"x"}`)

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeRegistration, Payload: payload}))

	got, err := svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	require.NoError(t, err)
	assert.Equal(t, PurposeRegistration, got.Purpose)
	assert.JSONEq(t, `{"username":"x"}`, string(got.Payload))
	assert.Equal(t, 0, store.Len())

	_, err = svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	codes := []string{"111111", "222222"}
	svc, _, _, _ := newTestService(t, Options{Generate: func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))

	_, err := svc.Verify(ctx, "a@b.com", "111111")
	assert.ErrorIs(t, err, ErrMismatch)

	got, err := svc.Verify(ctx, "a@b.com", "222222")
	require.NoError(t, err)
	assert.Equal(t, PurposeLogin, got.Purpose)
}

func TestVerifyRejectsExpiredCode(t *testing.T) {
	svc, store, sender, clk := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	clk.advance(10*time.Minute + time.Second)

	_, err := svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, store.Len())
}

func TestThirdWrongGuessDeletesRecord(t *testing.T) {
	svc, store, sender, _ := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	code := sender.last("a@b.com")

	_, err := svc.Verify(ctx, "a@b.com", wrong(code))
	assert.ErrorIs(t, err, ErrMismatch)
	_, err = svc.Verify(ctx, "a@b.com", wrong(code))
	assert.ErrorIs(t, err, ErrMismatch)
	_, err = svc.Verify(ctx, "a@b.com", wrong(code))
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, 0, store.Len())

	_, err = svc.Verify(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyRejectsRecordAlreadyAtLimit(t *testing.T) {
	svc, store, sender, _ := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	rec, err := store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	rec.Attempts = 3
	require.NoError(t, store.Put(ctx, rec))

	_, err = svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, 0, store.Len())
}

func TestConcurrentGuessesCannotExceedAttemptBudget(t *testing.T) {
	for round := 0; round < 10; round++ {
		svc, store, sender, _ := newTestService(t, Options{})
		ctx := context.Background()

		require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
		code := sender.last("a@b.com")

		guesses := make([]string, 100)
		for i := range guesses {
			guesses[i] = fmt.Sprintf("%06d", 100000+i)
			if guesses[i] == code {
				guesses[i] = wrong(code)
			}
		}
		guesses[round*7] = code

		var (
			wg                   sync.WaitGroup
			verified, mismatched atomic.Int32
		)
		start := make(chan struct{})
		for _, g := range guesses {
			g := g
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := svc.Verify(ctx, "a@b.com", g)
				switch {
				case err == nil:
					verified.Add(1)
				case errors.Is(err, ErrMismatch):
					mismatched.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.LessOrEqual(t, verified.Load(), int32(1))
		assert.LessOrEqual(t, mismatched.Load(), int32(DefaultMaxAttempts-1))
		assert.LessOrEqual(t, verified.Load()+mismatched.Load(), int32(DefaultMaxAttempts))
		assert.Equal(t, 0, store.Len())
	}
}

func TestReserveAttemptSpendsBudgetBeforeCompare(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, &Record{Email: "a@b.com", ExpiresAt: now.Add(time.Minute)}))

	for i := 1; i <= 3; i++ {
		rec, err := store.ReserveAttempt(ctx, "a@b.com", now, 3)
		require.NoError(t, err)
		assert.Equal(t, i, rec.Attempts)
	}
	_, err := store.ReserveAttempt(ctx, "a@b.com", now, 3)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, 0, store.Len())

	_, err = store.ReserveAttempt(ctx, "a@b.com", now, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeIgnoresReissuedRecord(t *testing.T) {
	svc, store, sender, _ := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	stale, err := store.ReserveAttempt(ctx, "a@b.com", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}))
	ok, err := store.Consume(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())

	_, err = svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	assert.NoError(t, err)
}

func TestIssueKeepsRecordWhenDeliveryFails(t *testing.T) {
	svc, store, sender, _ := newTestService(t, Options{})
	sender.err = errors.New("smtp down")
	ctx := context.Background()

	err := svc.Issue(ctx, IssueRequest{Email: "a@b.com", Purpose: PurposeLogin})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Equal(t, 1, store.Len())

	_, err = svc.Verify(ctx, "a@b.com", sender.last("a@b.com"))
	assert.NoError(t, err)
}

func TestIssueNormalizesEmail(t *testing.T) {
	svc, _, sender, _ := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "  A@B.com", Purpose: PurposeLogin}))
	_, err := svc.Verify(ctx, "a@b.COM", sender.last("a@b.com"))
	assert.NoError(t, err)
}

func TestIssueRejectsUnknownPurpose(t *testing.T) {
	svc, _, _, _ := newTestService(t, Options{})
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@b.com", Purpose: "reset"})
	assert.Error(t, err)
}

func TestIssueIsThrottled(t *testing.T) {
	svc, _, _, _ := newTestService(t, Options{Limiter: NewMemoryLimiter(2, time.Minute)})
	ctx := context.Background()
	req := IssueRequest{Email: "a@b.com", Purpose: PurposeLogin}

	require.NoError(t, svc.Issue(ctx, req))
	require.NoError(t, svc.Issue(ctx, req))
	assert.ErrorIs(t, svc.Issue(ctx, req), ErrRateLimited)
	assert.NoError(t, svc.Issue(ctx, IssueRequest{Email: "c@d.com", Purpose: PurposeLogin}))
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	svc, store, _, clk := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "old@b.com", Purpose: PurposeLogin}))
	clk.advance(6 * time.Minute)
	require.NoError(t, svc.Issue(ctx, IssueRequest{Email: "new@b.com", Purpose: PurposeLogin}))
	clk.advance(5 * time.Minute)

	removed, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "new@b.com")
	assert.NoError(t, err)
}

func TestStartSweeperStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.Put(context.Background(), &Record{Email: "a@b.com", ExpiresAt: past}))

	svc := NewService(store, &fakeSender{}, hashing.NewHasher("p", testParams), Options{SweepInterval: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartSweeper(ctx)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	clk := &clock{t: time.Unix(0, 0)}
	l.now = clk.now
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	clk.advance(time.Minute + time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}
