// Package convert maps domain entities to the JSON views served over HTTP.
package convert

import (
	"time"

	model "github.com/and161185/tubeaccount/internal/model"
)

// --- views ---

// UserView is a user record without credential fields.
type UserView struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LoginView is the login response payload.
type LoginView struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// TokensView is the refresh response payload.
type TokensView struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ChannelView is a channel profile as seen by the viewer.
type ChannelView struct {
	ID                        string `json:"_id"`
	Username                  string `json:"username"`
	FullName                  string `json:"fullName"`
	Email                     string `json:"email"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}

// OwnerView is the owner projection nested in history entries.
type OwnerView struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

// VideoView is one watch history entry.
type VideoView struct {
	ID          string    `json:"_id"`
	VideoFile   string    `json:"videoFile"`
	Thumbnail   string    `json:"thumbnail"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    float64   `json:"duration"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"createdAt"`
	Owner       OwnerView `json:"owner"`
}

// --- converters ---

// ToUserView drops the password hash and refresh token.
func ToUserView(u model.User) UserView {
	return UserView{
		ID:         u.ID.String(),
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// ToUserViews converts a list of users.
func ToUserViews(us []model.User) []UserView {
	out := make([]UserView, 0, len(us))
	for _, u := range us {
		out = append(out, ToUserView(u))
	}
	return out
}

// ToLoginView combines the user and the issued pair.
func ToLoginView(u model.User, t model.Tokens) LoginView {
	return LoginView{User: ToUserView(u), AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// ToTokensView exposes both tokens of a pair.
func ToTokensView(t model.Tokens) TokensView {
	return TokensView{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// ToChannelView converts a channel profile.
func ToChannelView(p model.ChannelProfile) ChannelView {
	return ChannelView{
		ID:                        p.ID.String(),
		Username:                  p.Username,
		FullName:                  p.FullName,
		Email:                     p.Email,
		Avatar:                    p.Avatar,
		CoverImage:                p.CoverImage,
		SubscribersCount:          p.SubscribersCount,
		ChannelsSubscribedToCount: p.SubscribedToCount,
		IsSubscribed:              p.IsSubscribed,
	}
}

// ToHistoryView converts watch history, keeping its order.
func ToHistoryView(vs []model.WatchedVideo) []VideoView {
	out := make([]VideoView, 0, len(vs))
	for _, v := range vs {
		out = append(out, VideoView{
			ID:          v.ID.String(),
			VideoFile:   v.VideoFile,
			Thumbnail:   v.Thumbnail,
			Title:       v.Title,
			Description: v.Description,
			Duration:    v.Duration,
			Views:       v.Views,
			CreatedAt:   v.CreatedAt,
			Owner: OwnerView{
				ID:       v.Owner.ID.String(),
				Username: v.Owner.Username,
				FullName: v.Owner.FullName,
				Avatar:   v.Owner.Avatar,
			},
		})
	}
	return out
}
