package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mareye-api/internal/auth"
	"mareye-api/internal/hashing"
	"mareye-api/internal/models"
	"mareye-api/internal/otp"
)

const testCode = "123456"

var testParams = hashing.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type authFixture struct {
	svc       *AuthService
	users     *fakeUsers
	mailer    *fakeMailer
	publisher *recordingPublisher
	tokens    *auth.TokenManager
}

func newAuthFixture(t *testing.T, limiter otp.Limiter, existing ...*models.User) *authFixture {
	t.Helper()
	users := newFakeUsers(existing...)
	mailer := &fakeMailer{}
	publisher := &recordingPublisher{}
	tokens := auth.NewTokenManager("test-secret")
	otpSvc := otp.NewService(otp.NewMemoryStore(), mailer, hashing.NewHasher("pepper", testParams), otp.Options{
		Limiter:  limiter,
		Generate: func() (string, error) { return testCode, nil },
	}, zap.NewNop())

	svc := NewAuthService(users, otpSvc, tokens, mailer, publisher, zap.NewNop())
	svc.bgAsync = syncRun
	return &authFixture{svc: svc, users: users, mailer: mailer, publisher: publisher, tokens: tokens}
}

func passwordUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{Username: "diver", Email: email, Password: string(hash)}
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t, nil)

	user, err := f.svc.Register(context.Background(), RegisterRequest{
		Username: "diver",
		Email:    " Diver@Example.com ",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	assert.Equal(t, "diver@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)
	assert.Equal(t, models.DefaultPlan, user.Subscription.Plan)
	assert.Equal(t, models.DefaultDailyLimit, user.Tokens.DailyLimit)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("s3cret!")))
	assert.Equal(t, []string{"diver@example.com"}, f.mailer.welcomes)
	assert.Equal(t, []string{models.EventUserRegistered}, f.publisher.types())

	_, err = f.svc.Register(context.Background(), RegisterRequest{Username: "x", Email: "diver@example.com", Password: "p"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t, nil)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing username", RegisterRequest{Email: "a@b.co", Password: "p"}},
		{"missing email", RegisterRequest{Username: "a", Password: "p"}},
		{"missing password", RegisterRequest{Username: "a", Email: "a@b.co"}},
		{"bad email", RegisterRequest{Username: "a", Email: "not-an-email", Password: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t, nil, passwordUser(t, "diver@example.com", "right"))

	_, err := f.svc.Login(context.Background(), "diver@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "nobody@example.com", "right")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "", "right")
	assert.ErrorIs(t, err, ErrInvalidInput)

	session, err := f.svc.Login(context.Background(), "DIVER@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, auth.LoginTTL, session.TTL)

	claims, err := f.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID.Hex(), claims.UserID)
	assert.Equal(t, "diver@example.com", claims.Email)

	assert.Equal(t, []string{models.EventLoginFailed, models.EventLoginFailed, models.EventUserLogin}, f.publisher.types())
}

func TestLoginRejectsGoogleOnlyAccount(t *testing.T) {
	f := newAuthFixture(t, nil, &models.User{Email: "g@example.com", GoogleID: "123"})

	_, err := f.svc.Login(context.Background(), "g@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSendOTPAccountChecks(t *testing.T) {
	f := newAuthFixture(t, nil, passwordUser(t, "taken@example.com", "pw"))
	ctx := context.Background()

	err := f.svc.SendOTP(ctx, SendOTPRequest{Email: "taken@example.com", Type: "registration"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	err = f.svc.SendOTP(ctx, SendOTPRequest{Email: "ghost@example.com", Type: "login"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = f.svc.SendOTP(ctx, SendOTPRequest{Email: "ghost@example.com", Type: "reset"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.SendOTP(ctx, SendOTPRequest{Type: "login"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, f.mailer.otps)
}

func TestOTPRegistrationFlow(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	err := f.svc.SendOTP(ctx, SendOTPRequest{
		Email: "new@example.com",
		UserData: &RegisterRequest{
			Username:  "newbie",
			Password:  "hunter22",
			FirstName: "Ada",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, testCode, f.mailer.otps["new@example.com"])

	session, created, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "new@example.com", OTP: testCode, Type: "registration"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, auth.OTPVerifyTTL, session.TTL)
	assert.True(t, session.User.IsEmailVerified)
	assert.Equal(t, "newbie", session.User.Username)
	assert.Equal(t, "Ada", session.User.FirstName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(session.User.Password), []byte("hunter22")))

	// the code is single use
	_, _, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "new@example.com", OTP: testCode, Type: "registration"})
	assert.ErrorIs(t, err, otp.ErrNotFound)
}

func TestOTPRegistrationWithoutUserData(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, SendOTPRequest{Email: "new@example.com", Type: "registration"}))

	_, _, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "new@example.com", OTP: testCode})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "user data not found")
}

func TestOTPLoginFlow(t *testing.T) {
	f := newAuthFixture(t, nil, passwordUser(t, "diver@example.com", "pw"))
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, SendOTPRequest{Email: "diver@example.com", Type: "login"}))

	_, _, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "diver@example.com", OTP: "000000", Type: "login"})
	assert.ErrorIs(t, err, otp.ErrMismatch)

	session, created, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "diver@example.com", OTP: testCode, Type: "login"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "diver@example.com", session.User.Email)
}

func TestVerifyOTPPurposeMismatchConsumesCode(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, SendOTPRequest{
		Email:    "new@example.com",
		UserData: &RegisterRequest{Password: "pw"},
	}))

	_, _, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "new@example.com", OTP: testCode, Type: "login"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "new@example.com", OTP: testCode, Type: "registration"})
	assert.ErrorIs(t, err, otp.ErrNotFound)
}

func TestSendOTPErrorsAreMapped(t *testing.T) {
	t.Run("throttled", func(t *testing.T) {
		f := newAuthFixture(t, otp.NewMemoryLimiter(1, time.Minute))
		ctx := context.Background()

		require.NoError(t, f.svc.SendOTP(ctx, SendOTPRequest{Email: "a@example.com"}))
		err := f.svc.SendOTP(ctx, SendOTPRequest{Email: "a@example.com"})
		assert.ErrorIs(t, err, ErrTooManyRequests)
	})

	t.Run("delivery", func(t *testing.T) {
		f := newAuthFixture(t, nil)
		f.mailer.err = errors.New("smtp down")

		err := f.svc.SendOTP(context.Background(), SendOTPRequest{Email: "a@example.com"})
		assert.ErrorIs(t, err, ErrDeliveryFailed)
	})
}

func TestRegisterRejectsMarkupInNames(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Username: "<script>alert(1)</script>",
		Email:    "x@example.com",
		Password: "pw",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.SendOTP(context.Background(), SendOTPRequest{
		Email:    "x@example.com",
		UserData: &RegisterRequest{Password: "pw", FirstName: "{{.Secret}}"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
