package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DefaultPlan       = "basic"
	DefaultPlanStatus = "active"
	DefaultDailyLimit = 10
)

type Subscription struct {
	Plan   string `json:"plan" bson:"plan"`
	Status string `json:"status" bson:"status"`
}

type TokenUsage struct {
	DailyLimit    int       `json:"dailyLimit" bson:"dailyLimit"`
	UsedToday     int       `json:"usedToday" bson:"usedToday"`
	LastResetDate time.Time `json:"lastResetDate" bson:"lastResetDate"`
	TotalUsed     int       `json:"totalUsed" bson:"totalUsed"`
}

// User is a document in the users collection. Password holds a bcrypt hash and is never serialized to JSON.
type User struct {
	ID              bson.ObjectID `json:"id" bson:"_id,omitempty"`
	Username        string        `json:"username" bson:"username"`
	Email           string        `json:"email" bson:"email"`
	Password        string        `json:"-" bson:"password,omitempty"`
	FirstName       string        `json:"firstName" bson:"firstName"`
	LastName        string        `json:"lastName" bson:"lastName"`
	DOB             string        `json:"dob" bson:"dob"`
	Avatar          string        `json:"avatar" bson:"avatar"`
	GoogleID        string        `json:"googleId,omitempty" bson:"googleId,omitempty"`
	IsEmailVerified bool          `json:"isEmailVerified" bson:"isEmailVerified"`
	Subscription    *Subscription `json:"subscription,omitempty" bson:"subscription,omitempty"`
	Tokens          *TokenUsage   `json:"tokens,omitempty" bson:"tokens,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
}

func DefaultSubscription() *Subscription {
	return &Subscription{Plan: DefaultPlan, Status: DefaultPlanStatus}
}

func DefaultTokenUsage(now time.Time) *TokenUsage {
	return &TokenUsage{DailyLimit: DefaultDailyLimit, LastResetDate: now}
}

// WithDefaults fills subscription and token usage for documents written before those fields existed.
func (u *User) WithDefaults(now time.Time) *User {
	out := *u
	if out.Subscription == nil {
		out.Subscription = DefaultSubscription()
	}
	if out.Tokens == nil {
		out.Tokens = DefaultTokenUsage(now)
	}
	return &out
}

// DisplayName prefers the first name and falls back to the username.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// PublicUser is the shape returned by the auth endpoints.
type PublicUser struct {
	ID              string `json:"id"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	DOB             string `json:"dob"`
	Avatar          string `json:"avatar"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID.Hex(),
		Username:        u.Username,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		DOB:             u.DOB,
		Avatar:          u.Avatar,
		IsEmailVerified: u.IsEmailVerified,
	}
}

// GoogleProfile is the subset of the Google userinfo response used for sign-in.
type GoogleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
